package model

// GroupStatus tracks where a shared cart session sits in its lifecycle.
// The values are the lower-case strings used on the wire and in the
// persisted record. Transitions move forward (cart -> checkout ->
// completed); the only backward move is checkout -> cart, and completed
// is terminal.
type GroupStatus string

const (
	StatusCart      GroupStatus = "cart"
	StatusCheckout  GroupStatus = "checkout"
	StatusCompleted GroupStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s GroupStatus) Valid() bool {
	switch s {
	case StatusCart, StatusCheckout, StatusCompleted:
		return true
	}
	return false
}

// Role identifies a member's authority inside a group. Exactly one
// member per group holds RoleOwner; the role is assigned when the
// member enters the group and never changes afterwards.
type Role string

const (
	RoleOwner  Role = "Owner"
	RoleMember Role = "Member"
)

// Member is one participant of a group. The UUID is generated on the
// participant's device and stays stable across rejoins, which is what
// makes join idempotent. Done is a member-only "finished shopping"
// signal; it stays togglable until the group completes.
//
// Fields:
//  UUID     – opaque client-generated identifier, unique within the group.
//  Nickname – display name shown to other participants.
//  Email    – informational contact, not used for authorization.
//  Role     – Owner or Member.
//  Done     – finished-shopping flag.
//  Products – the member's own selections; never written by other members.
type Member struct {
	UUID     string   `json:"uuid"`
	Nickname string   `json:"nickname"`
	Email    string   `json:"email,omitempty"`
	Role     Role     `json:"role"`
	Done     bool     `json:"done,omitempty"`
	Products Products `json:"products"`
}

// Group is the shared collaborative cart record. One JSON-serialized
// Group is stored per group id. Version counts successful writes and
// backs the store layer's conditional updates; it is carried in the
// serialized record but is not part of the client contract.
type Group struct {
	ID      string      `json:"id"`
	CartID  string      `json:"cartId"`
	Status  GroupStatus `json:"status"`
	Members []Member    `json:"members"`
	Version uint64      `json:"version,omitempty"`
}

// Member returns a pointer to the member with the given uuid, or nil.
// The pointer aliases the slice entry so callers may mutate in place.
func (g *Group) Member(uuid string) *Member {
	for i := range g.Members {
		if g.Members[i].UUID == uuid {
			return &g.Members[i]
		}
	}
	return nil
}

// Owner returns the single member holding RoleOwner, or nil when the
// group is malformed and has none.
func (g *Group) Owner() *Member {
	for i := range g.Members {
		if g.Members[i].Role == RoleOwner {
			return &g.Members[i]
		}
	}
	return nil
}

// HasOwner reports whether any member holds RoleOwner.
func (g *Group) HasOwner() bool { return g.Owner() != nil }

// Clone returns a deep copy of the group. Stores and the coordinator
// hand out clones so callers can never mutate shared state through an
// aliased slice.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := *g
	out.Members = make([]Member, len(g.Members))
	for i, m := range g.Members {
		out.Members[i] = m.Clone()
	}
	return &out
}

// Clone returns a deep copy of the member.
func (m Member) Clone() Member {
	out := m
	out.Products.Items = append([]ProductSelection(nil), m.Products.Items...)
	return out
}
