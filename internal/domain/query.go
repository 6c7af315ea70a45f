package domain

// Hints carries the boolean structure extracted from a raw query.
// It annotates the query for lexical boosting; it never rejects one.
type Hints struct {
	Include []string
	Exclude []string
	Or      []string
}

// HasAnchors reports whether any include terms were recognized.
func (h Hints) HasAnchors() bool { return len(h.Include) > 0 }
