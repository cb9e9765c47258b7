package model

import "fmt"

// Handle is a non-owning, generation-checked reference to a body in the
// world arena. A handle becomes stale as soon as its body is destroyed; the
// slot may later be reused under a higher generation, so stale handles never
// alias a new body.
type Handle struct {
	Index      uint32
	Generation uint32
}

// NilHandle never refers to a live body.
var NilHandle = Handle{}

// IsNil reports whether h is the zero handle.
func (h Handle) IsNil() bool { return h.Generation == 0 }

// Less orders handles by slot index, then generation.
func (h Handle) Less(other Handle) bool {
	if h.Index != other.Index {
		return h.Index < other.Index
	}
	return h.Generation < other.Generation
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}
