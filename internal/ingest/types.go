// Package ingest loads member records from CSV and JSON files or uploads
// into the member store.
package ingest

import "github.com/ziadkadry99/memberrec/internal/members"

// Format is a supported input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Row is one parsed input record and where it came from.
type Row struct {
	File   string
	Line   int
	Member members.Member
}

// RowError is a record that was rejected.
type RowError struct {
	File     string `json:"file,omitempty"`
	Row      int    `json:"row"`
	MemberNo int64  `json:"member_no,omitempty"`
	Error    string `json:"error"`
}

// Report summarises an import.
type Report struct {
	Files      []string   `json:"files,omitempty"`
	Rows       int        `json:"rows"`
	Imported   int        `json:"imported"`
	Existing   []int64    `json:"existing"`
	Invalid    []RowError `json:"invalid"`
	Vectorized int        `json:"vectorized"`
}

func newReport() *Report {
	return &Report{Existing: []int64{}, Invalid: []RowError{}}
}

func (r *Report) reject(file string, err *members.ValidationError) {
	r.Invalid = append(r.Invalid, RowError{File: file, Row: err.Row, MemberNo: err.MemberNo, Error: err.Error()})
}
