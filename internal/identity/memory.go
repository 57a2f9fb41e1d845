package identity

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryProvider holds identity state in memory. Used by tests and by
// short-lived tooling that has no business persisting an id.
type MemoryProvider struct {
	mu            sync.Mutex
	participantID string
	groupID       string
}

// NewMemoryProvider returns a provider with a fresh participant id.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{participantID: uuid.NewString()}
}

// NewMemoryProviderWithID returns a provider with a fixed participant
// id, handy when a test needs a known uuid.
func NewMemoryProviderWithID(id string) *MemoryProvider {
	return &MemoryProvider{participantID: id}
}

func (p *MemoryProvider) ParticipantID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.participantID
}

func (p *MemoryProvider) GroupID() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groupID, p.groupID != ""
}

func (p *MemoryProvider) SetGroupID(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groupID = id
	return nil
}

func (p *MemoryProvider) ClearGroupID() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.groupID = ""
	return nil
}
