package members

import "fmt"

// ValidationError reports a malformed member record. Ingestion rejects the
// offending record and keeps going.
type ValidationError struct {
	MemberNo int64
	Row      int
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	var where string
	switch {
	case e.Row > 0 && e.MemberNo > 0:
		where = fmt.Sprintf("row %d (member %d)", e.Row, e.MemberNo)
	case e.Row > 0:
		where = fmt.Sprintf("row %d", e.Row)
	default:
		where = fmt.Sprintf("member %d", e.MemberNo)
	}
	return fmt.Sprintf("invalid %s: %s %s", where, e.Field, e.Reason)
}
