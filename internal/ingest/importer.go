package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/members"
)

// ErrNoIndexer is returned when Vectorize is requested without an index.
var ErrNoIndexer = errors.New("vectorize requested but no vector index is configured")

// Options control how rows are written.
type Options struct {
	// Overwrite replaces stored members instead of skipping them.
	Overwrite bool
	// Vectorize inserts imported members into the vector index right away.
	Vectorize bool
}

// Importer validates rows and upserts them into the store.
type Importer struct {
	store   members.Store
	indexer members.Indexer
	logger  *zap.Logger
}

// NewImporter creates an Importer. indexer may be nil, in which case
// Vectorize is rejected.
func NewImporter(store members.Store, indexer members.Indexer, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, indexer: indexer, logger: logger}
}

// Import writes rows to the store. Invalid rows and rows for members that
// already exist (unless opts.Overwrite) are reported and skipped; the
// rest of the batch is still written. When the same member_no appears
// more than once, the last row wins.
func (imp *Importer) Import(ctx context.Context, rows []Row, opts Options) (*Report, error) {
	if opts.Vectorize && imp.indexer == nil {
		return nil, ErrNoIndexer
	}

	report := newReport()
	report.Rows = len(rows)

	order := make([]int64, 0, len(rows))
	accepted := make(map[int64]members.Member, len(rows))
	for _, row := range rows {
		m := row.Member
		if m.Versions == nil {
			m.Versions = members.DefaultVersions()
		}
		if err := m.Validate(); err != nil {
			var verr *members.ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			verr.Row = row.Line
			report.reject(row.File, verr)
			imp.logger.Warn("rejected row", zap.String("file", row.File), zap.Int("row", row.Line), zap.Error(verr))
			continue
		}

		if _, dup := accepted[m.MemberNo]; !dup {
			exists, err := imp.store.Exists(ctx, m.MemberNo)
			if err != nil {
				return nil, fmt.Errorf("checking member %d: %w", m.MemberNo, err)
			}
			if exists && !opts.Overwrite {
				report.Existing = append(report.Existing, m.MemberNo)
				imp.logger.Warn("member already exists, skipping", zap.Int64("member_no", m.MemberNo))
				continue
			}
			order = append(order, m.MemberNo)
		}
		accepted[m.MemberNo] = m
	}

	batch := make([]members.Member, 0, len(order))
	for _, no := range order {
		batch = append(batch, accepted[no])
	}
	if err := imp.store.Upsert(ctx, batch); err != nil {
		return nil, fmt.Errorf("upserting %d members: %w", len(batch), err)
	}
	report.Imported = len(batch)

	if opts.Vectorize && len(batch) > 0 {
		n, err := imp.indexer.InsertMembers(ctx, batch, "")
		if err != nil {
			return report, fmt.Errorf("vectorizing imported members: %w", err)
		}
		report.Vectorized = n
	}

	imp.logger.Info("import finished",
		zap.Int("rows", report.Rows),
		zap.Int("imported", report.Imported),
		zap.Int("existing", len(report.Existing)),
		zap.Int("invalid", len(report.Invalid)),
		zap.Int("vectorized", report.Vectorized),
	)
	return report, nil
}

// ImportFiles expands patterns and imports every matching file as a single
// batch. A file that cannot be read or decoded aborts the import before
// anything is written.
func (imp *Importer) ImportFiles(ctx context.Context, patterns []string, opts Options) (*Report, error) {
	files, err := Expand(patterns)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no .csv or .json files found")
	}

	var (
		rows    []Row
		invalid []RowError
	)
	for _, path := range files {
		r, bad, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
		invalid = append(invalid, bad...)
	}

	report, err := imp.Import(ctx, rows, opts)
	if report != nil {
		report.Files = files
		report.Rows += len(invalid)
		report.Invalid = append(invalid, report.Invalid...)
	}
	return report, err
}
