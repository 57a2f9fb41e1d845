package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// fileState is the on-disk layout. One small JSON file per device.
type fileState struct {
	ParticipantID string `json:"participantId"`
	GroupID       string `json:"groupId,omitempty"`
}

// FileProvider keeps identity state in a JSON file, the device-local
// analog of browser storage. The participant id is generated on first
// use and survives restarts; writes go through a temp file rename so a
// crash never leaves a torn state file.
type FileProvider struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewFileProvider loads or initializes the state file at path.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// first run, fall through to generate
	case err != nil:
		return nil, fmt.Errorf("read identity state: %w", err)
	default:
		if err := json.Unmarshal(raw, &p.state); err != nil {
			return nil, fmt.Errorf("decode identity state: %w", err)
		}
	}
	if p.state.ParticipantID == "" {
		p.state.ParticipantID = uuid.NewString()
		if err := p.persist(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ParticipantID returns the stable device id.
func (p *FileProvider) ParticipantID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.ParticipantID
}

// GroupID returns the active group pointer, if set.
func (p *FileProvider) GroupID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.GroupID, p.state.GroupID != ""
}

// SetGroupID records id as the active group.
func (p *FileProvider) SetGroupID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.GroupID = id
	return p.persist()
}

// ClearGroupID drops the active group pointer.
func (p *FileProvider) ClearGroupID() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.GroupID = ""
	return p.persist()
}

func (p *FileProvider) persist() error {
	raw, err := json.MarshalIndent(&p.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity state: %w", err)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return fmt.Errorf("write identity state: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write identity state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write identity state: %w", err)
	}
	if err := os.Chmod(name, 0o600); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write identity state: %w", err)
	}
	if err := os.Rename(name, p.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write identity state: %w", err)
	}
	return nil
}
