package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ziadkadry99/memberrec/internal/members"
)

// headerAliases maps normalised column labels to member fields. The long
// labels are the ones used by spreadsheet exports.
var headerAliases = map[string]string{
	"member_no":      "member_no",
	"member_number":  "member_no",
	"name":           "name",
	"member_name":    "name",
	"company":        "company",
	"company_name":   "company",
	"title":          "title",
	"background":     "background",
	"company_url":    "company_url",
	"linkedin_url":   "linkedin_url",
	"versions":       "versions",
	"summary":        "summary",
	"llm_summary":    "summary",
	"member_summary": "summary",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}

// ParseCSV reads member rows from a CSV document with a header row.
// Rows without a member_no are skipped; malformed rows are returned as
// validation errors and do not stop parsing. Line numbers count the
// header as line 1.
func ParseCSV(r io.Reader) ([]Row, []*members.ValidationError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		if field, ok := headerAliases[normalizeHeader(h)]; ok {
			columns[field] = i
		}
	}
	if _, ok := columns["member_no"]; !ok {
		return nil, nil, errors.New("csv header has no member_no column")
	}

	var (
		rows    []Row
		invalid []*members.ValidationError
	)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				invalid = append(invalid, &members.ValidationError{Row: line, Field: "row", Reason: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("reading csv line %d: %w", line, err)
		}

		get := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		rawNo := get("member_no")
		if rawNo == "" {
			continue
		}
		no, err := parseMemberNo(rawNo)
		if err != nil {
			invalid = append(invalid, &members.ValidationError{Row: line, Field: "member_no", Reason: err.Error()})
			continue
		}
		versions, err := parseVersions(get("versions"))
		if err != nil {
			invalid = append(invalid, &members.ValidationError{Row: line, MemberNo: no, Field: "versions", Reason: err.Error()})
			continue
		}

		rows = append(rows, Row{Line: line, Member: members.Member{
			MemberNo:    no,
			Name:        get("name"),
			Company:     get("company"),
			Title:       get("title"),
			Background:  get("background"),
			CompanyURL:  get("company_url"),
			LinkedinURL: get("linkedin_url"),
			Versions:    versions,
			Summary:     get("summary"),
		}})
	}
	return rows, invalid, nil
}

// parseMemberNo accepts integers, including spreadsheet floats like "10.0".
func parseMemberNo(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}

// parseVersions reads either a JSON object ({"v1": true}) or a list of
// enabled tags separated by commas, semicolons or pipes. Empty input
// yields nil so the defaults apply.
func parseVersions(s string) (map[string]bool, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		var v map[string]bool
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("invalid versions object: %w", err)
		}
		return v, nil
	}
	tags := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == ' '
	})
	v := make(map[string]bool, len(tags))
	for _, t := range tags {
		v[t] = true
	}
	return v, nil
}

// ParseJSON reads either a JSON array of member objects or a single
// object. Rows are numbered from 1.
func ParseJSON(r io.Reader) ([]Row, []*members.ValidationError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil, nil
	}

	var raws []json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raws); err != nil {
			return nil, nil, fmt.Errorf("decoding json array: %w", err)
		}
	} else {
		raws = []json.RawMessage{json.RawMessage(trimmed)}
	}

	var (
		rows    []Row
		invalid []*members.ValidationError
	)
	for i, raw := range raws {
		var m members.Member
		if err := json.Unmarshal(raw, &m); err != nil {
			invalid = append(invalid, &members.ValidationError{Row: i + 1, Field: "record", Reason: err.Error()})
			continue
		}
		rows = append(rows, Row{Line: i + 1, Member: m})
	}
	return rows, invalid, nil
}

// Parse dispatches on format.
func Parse(r io.Reader, format Format) ([]Row, []*members.ValidationError, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r)
	case FormatJSON:
		return ParseJSON(r)
	default:
		return nil, nil, fmt.Errorf("unsupported format %q", format)
	}
}
