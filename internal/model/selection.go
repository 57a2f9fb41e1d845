package model

// SelectionOp is the direction of a selection change. The lower-case
// strings match the wire payloads exchanged with clients.
type SelectionOp string

const (
	OpAdd    SelectionOp = "add"
	OpRemove SelectionOp = "remove"
)

// Valid reports whether op is add or remove.
func (op SelectionOp) Valid() bool { return op == OpAdd || op == OpRemove }

// ProductSelection pairs a catalog variant with a quantity. A selection
// belongs to exactly one member. Quantity is always positive in a
// persisted record: a selection that reaches zero is pruned rather than
// stored as a zero entry.
type ProductSelection struct {
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// Products wraps a member's selection list. The envelope mirrors the
// wire shape ({"items": [...]}) so snapshots round-trip unchanged.
type Products struct {
	Items []ProductSelection `json:"items"`
}

// Quantity returns the quantity held for a variant, zero when absent.
func (p Products) Quantity(variantID string) int {
	for _, it := range p.Items {
		if it.VariantID == variantID {
			return it.Quantity
		}
	}
	return 0
}

// Apply adjusts the quantity for a variant by delta in the direction of
// op. Adds create the entry when missing; removes clamp at zero and a
// resulting zero quantity drops the entry entirely. Removing a variant
// that is not present is a no-op.
func (p *Products) Apply(op SelectionOp, variantID string, delta int) {
	for i := range p.Items {
		if p.Items[i].VariantID != variantID {
			continue
		}
		if op == OpAdd {
			p.Items[i].Quantity += delta
		} else {
			p.Items[i].Quantity -= delta
			if p.Items[i].Quantity <= 0 {
				p.Items = append(p.Items[:i], p.Items[i+1:]...)
			}
		}
		return
	}
	if op == OpAdd {
		p.Items = append(p.Items, ProductSelection{VariantID: variantID, Quantity: delta})
	}
}

// Prune drops entries whose quantity is zero or negative. Used to
// normalize selections submitted by clients before they are persisted.
func (p *Products) Prune() {
	kept := p.Items[:0]
	for _, it := range p.Items {
		if it.Quantity > 0 && it.VariantID != "" {
			kept = append(kept, it)
		}
	}
	p.Items = kept
}

// SelectionUpdate describes one member's requested change to their own
// selection list. UUID scopes the change: the repository only ever
// touches the member identified here.
type SelectionUpdate struct {
	UUID      string      `json:"userId"`
	Op        SelectionOp `json:"type"`
	VariantID string      `json:"variantId"`
	Quantity  int         `json:"quantity"`
}
