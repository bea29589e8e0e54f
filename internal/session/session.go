package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

const (
	dbFile = "whatsapp.db"
	// pairedFile marks a session whose device finished pairing. The database
	// alone is written before any QR is scanned.
	pairedFile = "paired"
)

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrPathEscape       = errors.New("session path escapes sessions root")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidID(id string) bool {
	return validID.MatchString(id)
}

// Manager keeps one directory per session under a fixed root.
type Manager struct {
	fs   afero.Fs
	root string
}

func NewManager(fs afero.Fs, root string) *Manager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Manager{fs: fs, root: filepath.Clean(root)}
}

func (m *Manager) Root() string {
	return m.root
}

// Path resolves the directory for id. Ids outside the allowed alphabet and
// paths that would leave the root are rejected.
func (m *Manager) Path(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	p := filepath.Join(m.root, id)
	rel, err := filepath.Rel(m.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, id)
	}
	return p, nil
}

func (m *Manager) DBPath(id string) (string, error) {
	p, err := m.Path(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(p, dbFile), nil
}

func (m *Manager) Create(id string) (string, error) {
	p, err := m.Path(id)
	if err != nil {
		return "", err
	}
	if err := m.fs.MkdirAll(p, 0o700); err != nil {
		return "", fmt.Errorf("create session %s: %w", id, err)
	}
	return p, nil
}

func (m *Manager) Remove(id string) error {
	p, err := m.Path(id)
	if err != nil {
		return err
	}
	if err := m.fs.RemoveAll(p); err != nil {
		return fmt.Errorf("remove session %s: %w", id, err)
	}
	return nil
}

// MarkPaired records that the device of session id is paired.
func (m *Manager) MarkPaired(id string) error {
	p, err := m.Path(id)
	if err != nil {
		return err
	}
	if err := m.fs.MkdirAll(p, 0o700); err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	if err := afero.WriteFile(m.fs, filepath.Join(p, pairedFile), nil, 0o600); err != nil {
		return fmt.Errorf("mark session %s paired: %w", id, err)
	}
	return nil
}

// HasSessionData reports whether session id holds a paired device that can be
// restored without a new QR.
func (m *Manager) HasSessionData(id string) (bool, error) {
	p, err := m.Path(id)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(m.fs, filepath.Join(p, pairedFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
