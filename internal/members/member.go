package members

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Member is a single member profile record. The JSON field order is part
// of the cache key contract and must not be reordered.
type Member struct {
	MemberNo    int64           `json:"member_no"`
	Name        string          `json:"name"`
	Company     string          `json:"company"`
	Title       string          `json:"title"`
	Background  string          `json:"background"`
	CompanyURL  string          `json:"company_url"`
	LinkedinURL string          `json:"linkedin_url"`
	Versions    map[string]bool `json:"versions"`
	Summary     string          `json:"summary"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// DefaultVersions returns the version flags given to new records that
// do not specify any.
func DefaultVersions() map[string]bool {
	return map[string]bool{"v1": true, "v2": false}
}

// Validate reports whether m can be stored.
func (m Member) Validate() error {
	if m.MemberNo <= 0 {
		return &ValidationError{MemberNo: m.MemberNo, Field: "member_no", Reason: "must be a positive integer"}
	}
	if strings.TrimSpace(m.Name) == "" {
		return &ValidationError{MemberNo: m.MemberNo, Field: "name", Reason: "is required"}
	}
	for tag := range m.Versions {
		if strings.TrimSpace(tag) == "" {
			return &ValidationError{MemberNo: m.MemberNo, Field: "versions", Reason: "contains an empty version tag"}
		}
	}
	return nil
}

// Enabled reports whether the record is flagged for the given version.
func (m Member) Enabled(version string) bool {
	return m.Versions[version]
}

// EnabledVersions returns the version tags flagged true, sorted.
func (m Member) EnabledVersions() []string {
	var tags []string
	for tag, on := range m.Versions {
		if on {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}

// Clone returns a deep copy of m.
func (m Member) Clone() Member {
	c := m
	if m.Versions != nil {
		c.Versions = make(map[string]bool, len(m.Versions))
		for k, v := range m.Versions {
			c.Versions[k] = v
		}
	}
	return c
}

// DocumentText is the text stored in the vector index for m: the summary
// when present, otherwise a placeholder built from the raw fields.
func DocumentText(m Member) string {
	if strings.TrimSpace(m.Summary) != "" {
		return m.Summary
	}
	return "Member info: " + rawText(m)
}

// QueryText is the text used to look up neighbours of m.
func QueryText(m Member) string {
	if strings.TrimSpace(m.Summary) != "" {
		return m.Summary
	}
	return rawText(m)
}

func rawText(m Member) string {
	return fmt.Sprintf("%s %s %s %s", m.Name, m.Company, m.Title, m.Background)
}

// InfoLines renders the non-empty descriptive fields of m as "key: value"
// lines in field order. Versions and summary are never included.
func InfoLines(m Member) []string {
	var no string
	if m.MemberNo != 0 {
		no = fmt.Sprintf("%d", m.MemberNo)
	}
	fields := []struct {
		key, value string
	}{
		{"member_no", no},
		{"name", m.Name},
		{"company", m.Company},
		{"title", m.Title},
		{"background", m.Background},
		{"company_url", m.CompanyURL},
		{"linkedin_url", m.LinkedinURL},
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		lines = append(lines, f.key+": "+f.value)
	}
	return lines
}
