package whatsapp

import (
	"context"
	"errors"

	"frigate-wa-bridge/internal/model"
)

var (
	ErrNotInitialized = errors.New("whatsapp client not initialized")
	ErrNotConnected   = errors.New("whatsapp client not connected")
)

// AccountClient is one live account session. Lifecycle changes arrive through
// the emit func handed to the factory, never as return values.
type AccountClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	Logout(ctx context.Context) error
	Close() error

	Self(ctx context.Context) (Identity, error)
	Groups(ctx context.Context) ([]model.Group, error)
	SendText(ctx context.Context, chatID, body string) error
}

type ClientSpec struct {
	SessionID string
	Dir       string
	DBPath    string
}

type ClientFactory func(ctx context.Context, cs ClientSpec, emit func(Event)) (AccountClient, error)

type Identity struct {
	ID     string
	Number string
	Name   string
}
