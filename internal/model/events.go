package model

// Event names shared by the WebSocket transport and in-process listeners.
const (
	EventConnectionState         = "connection-state-update"
	EventConnected               = "wa-connected-update"
	EventAccount                 = "wa-account-update"
	EventQRCode                  = "qr-code-update"
	EventIsSubscribed            = "is-subscribed-update"
	EventIsSubscribing           = "is-subscribing-update"
	EventCameras                 = "cameras-update"
	EventCameraGroupMappings     = "camera-group-mappings-update"
	EventScriptProcess           = "script-process-update"
	EventGroupMembershipRequests = "group-membership-requests-update"
	EventGroups                  = "wa-groups-update"

	EventStatus           = "wa-status-update"
	EventAuthorized       = "wa-authorized"
	EventError            = "wa-error"
	EventForwardStarted   = "forwarding-started"
	EventForwardStopped   = "forwarding-stopped"
	EventNewCamera        = "new-camera"
	EventFormatted        = "formatted-event"
	EventCameraGroupSaved = "camera-group-updated"
	EventMQTTStatus       = "mqtt-status"

	EventGroupMembershipRequest = "wa-group-membership-request"
	EventMessage                = "message"
)

// Inbound intents sent by dashboard clients over the WebSocket.
const (
	IntentSubscribe    = "wa-subscribe-request"
	IntentUnsubscribe  = "wa-unsubscribe-request"
	IntentConnect      = "wa-connect-request"
	IntentDisconnect   = "wa-disconnect-request"
	IntentAuthorize    = "wa-authorize-request"
	IntentForwarding   = "wa-forwarding-request"
	IntentAssignCamera = "assign-camera-to-group"
	IntentPing         = "ping"
)

type StatusPayload struct {
	Connected bool `json:"connected"`
}

type AuthorizedPayload struct {
	Authorized bool `json:"authorized"`
}

type ForwardingPayload struct {
	Forwarding bool `json:"forwarding"`
}
