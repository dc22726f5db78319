package rerank

import (
	"errors"
	"fmt"
)

// ErrMemberNotFound is returned when recommending for an unknown member_no.
var ErrMemberNotFound = errors.New("member not found")

// errNoCandidates short-circuits the cached computation so that an empty
// candidate set is never stored.
var errNoCandidates = errors.New("no candidates")

// ParseError reports an LLM answer that does not match the expected
// {"member_no": ..., "reason": ...} shape.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("unparseable recommendation (%s): %q", e.Reason, raw)
}
