package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// Expand resolves files, directories and doublestar globs (e.g.
// "exports/**/*.csv") into a sorted, de-duplicated list of supported
// files. Directories are searched recursively.
func Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if _, ok := FormatOf(path); !ok {
			return
		}
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}

		info, err := os.Stat(pattern)
		switch {
		case err == nil && info.IsDir():
			matches, err := doublestar.Glob(os.DirFS(pattern), "**/*.{csv,json,CSV,JSON}")
			if err != nil {
				return nil, fmt.Errorf("searching %s: %w", pattern, err)
			}
			for _, m := range matches {
				add(filepath.Join(pattern, filepath.FromSlash(m)))
			}
		case err == nil:
			if _, ok := FormatOf(pattern); !ok {
				return nil, fmt.Errorf("%s: unsupported file type (want .csv or .json)", pattern)
			}
			add(pattern)
		default:
			matches, gerr := doublestar.FilepathGlob(pattern)
			if gerr != nil {
				return nil, fmt.Errorf("expanding %s: %w", pattern, gerr)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("%s: no matching files", pattern)
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// ParseFile parses a single CSV or JSON file. Returned rows carry path.
func ParseFile(path string) ([]Row, []RowError, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, nil, fmt.Errorf("%s: unsupported file type", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, invalid, err := Parse(f, format)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range rows {
		rows[i].File = path
	}
	errs := make([]RowError, 0, len(invalid))
	for _, v := range invalid {
		errs = append(errs, RowError{File: path, Row: v.Row, MemberNo: v.MemberNo, Error: v.Error()})
	}
	return rows, errs, nil
}
