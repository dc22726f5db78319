package rerank

import (
	"encoding/json"
	"strconv"
	"strings"
)

type answer struct {
	MemberNo json.RawMessage `json:"member_no"`
	Reason   *string         `json:"reason"`
}

// parseAnswer extracts the chosen member and a non-blank reason from the
// LLM output, tolerating markdown code fences and a quoted member_no.
func parseAnswer(content string) (int64, string, error) {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		if idx := strings.Index(body, "\n"); idx >= 0 {
			body = body[idx+1:]
		}
		if idx := strings.LastIndex(body, "```"); idx >= 0 {
			body = body[:idx]
		}
		body = strings.TrimSpace(body)
	}
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var a answer
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return 0, "", &ParseError{Raw: content, Reason: err.Error()}
	}
	if len(a.MemberNo) == 0 || string(a.MemberNo) == "null" {
		return 0, "", &ParseError{Raw: content, Reason: "member_no is missing"}
	}
	id, err := strconv.ParseInt(strings.Trim(string(a.MemberNo), `"`), 10, 64)
	if err != nil {
		return 0, "", &ParseError{Raw: content, Reason: "member_no is not an integer"}
	}
	if a.Reason == nil {
		return 0, "", &ParseError{Raw: content, Reason: "reason is missing"}
	}
	reason := strings.TrimSpace(*a.Reason)
	if reason == "" {
		return 0, "", &ParseError{Raw: content, Reason: "reason is empty"}
	}
	return id, reason, nil
}
