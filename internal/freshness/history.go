package freshness

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ziadkadry99/memberrec/internal/db"
)

// History records refresh runs.
type History interface {
	Begin(ctx context.Context, res *Result) error
	Finish(ctx context.Context, res *Result) error
}

// RunStore keeps run history in the refresh_runs table.
type RunStore struct {
	db *db.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(database *db.DB) *RunStore {
	return &RunStore{db: database}
}

// Begin inserts a running entry for res.
func (s *RunStore) Begin(ctx context.Context, res *Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_runs (id, version, enhance, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		res.RunID, res.Version, res.Enhance, string(StatusRunning), db.FormatTime(res.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting refresh run: %w", err)
	}
	return nil
}

// Finish stores the final counters and status of res.
func (s *RunStore) Finish(ctx context.Context, res *Result) error {
	errs := res.Errors
	if errs == nil {
		errs = []RecordError{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshalling run errors: %w", err)
	}

	var finished sql.NullString
	if res.FinishedAt != nil {
		finished = sql.NullString{String: db.FormatTime(*res.FinishedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE refresh_runs SET
			status = ?, stale = ?, enhanced = ?, failed = ?, upserted = ?, vectorized = ?,
			input_tokens = ?, output_tokens = ?, errors = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		string(res.Status), res.Stale, res.Enhanced, res.Failed, res.Upserted, res.Vectorized,
		res.Usage.InputTokens, res.Usage.OutputTokens, string(errsJSON), res.Error, finished,
		res.RunID,
	)
	if err != nil {
		return fmt.Errorf("updating refresh run: %w", err)
	}
	return nil
}

// Get returns a run by id, or nil if it does not exist.
func (s *RunStore) Get(ctx context.Context, id string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	res, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

// RunFilter controls which runs List returns.
type RunFilter struct {
	Version string
	Status  Status
	Limit   int
}

// List returns runs, newest first.
func (s *RunStore) List(ctx context.Context, filter RunFilter) ([]Result, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Version != "" {
		clauses = append(clauses, "version = ?")
		args = append(args, filter.Version)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := selectRuns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []Result
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *res)
	}
	return runs, rows.Err()
}

const selectRuns = `SELECT id, version, enhance, status, stale, enhanced, failed, upserted, vectorized,
	input_tokens, output_tokens, errors, error, started_at, finished_at FROM refresh_runs`

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Result, error) {
	var (
		res              Result
		status, errsJSON string
		started          string
		finished         sql.NullString
	)
	err := sc.Scan(
		&res.RunID, &res.Version, &res.Enhance, &status,
		&res.Stale, &res.Enhanced, &res.Failed, &res.Upserted, &res.Vectorized,
		&res.Usage.InputTokens, &res.Usage.OutputTokens, &errsJSON, &res.Error,
		&started, &finished,
	)
	if err != nil {
		return nil, err
	}
	res.Status = Status(status)

	res.StartedAt = db.ParseTime(started)
	if finished.Valid {
		t := db.ParseTime(finished.String)
		res.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(errsJSON), &res.Errors); err != nil {
		res.Errors = nil
	}
	return &res, nil
}
