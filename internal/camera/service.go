package camera

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"frigate-wa-bridge/internal/model"
	"frigate-wa-bridge/internal/state"
)

var (
	ErrUnknownCamera = errors.New("camera not found")
	ErrInvalidInput  = errors.New("camera and group are required")
)

type Service struct {
	store *state.Store
	log   *logrus.Entry
}

func NewService(store *state.Store, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: store, log: log}
}

func (s *Service) List() []string {
	return s.store.Cameras()
}

func (s *Service) Mappings() map[string]string {
	return s.store.CameraGroupMappings()
}

// Assign maps camera to group, replacing any earlier mapping, and broadcasts
// the full mapping table.
func (s *Service) Assign(camera, group string) error {
	camera = strings.TrimSpace(camera)
	group = strings.TrimSpace(group)
	if camera == "" || group == "" {
		return ErrInvalidInput
	}
	if !s.store.HasCamera(camera) {
		s.log.WithFields(logrus.Fields{"camera": camera, "group": group}).Error("assign to unknown camera")
		return fmt.Errorf("%w: %q", ErrUnknownCamera, camera)
	}

	s.store.AssignCameraGroup(camera, group)
	s.store.Emit(model.EventCameraGroupSaved, s.store.CameraGroupMappings())
	s.log.WithFields(logrus.Fields{"camera": camera, "group": group}).Info("assigned camera to group")
	return nil
}
