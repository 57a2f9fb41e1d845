// Package identity persists the local participant's anonymous id and
// the pointer to their active group. The provider is injected into the
// coordinator at construction so nothing in the core reaches for
// process-global identity state.
package identity

// Provider supplies the stable per-device participant id and owns the
// active-group pointer. ParticipantID never changes for the lifetime
// of the underlying state; the group pointer is set on create/join and
// cleared when the participant abandons the group locally.
type Provider interface {
	ParticipantID() string
	GroupID() (string, bool)
	SetGroupID(id string) error
	ClearGroupID() error
}
