package members

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/memberrec/internal/db"
)

// SQLiteStore implements Store on the shared sqlite database.
type SQLiteStore struct {
	db     *db.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a Store backed by the given database.
func NewSQLiteStore(database *db.DB, logger *zap.Logger) *SQLiteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{db: database, logger: logger, now: time.Now}
}

// WithClock replaces the store's time source and returns the store.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = now
	return s
}

const upsertSQLite = `
	INSERT INTO member_info (
		member_no, name, company, title, background,
		company_url, linkedin_url, versions, summary,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(member_no) DO UPDATE SET
		name = excluded.name,
		company = excluded.company,
		title = excluded.title,
		background = excluded.background,
		company_url = excluded.company_url,
		linkedin_url = excluded.linkedin_url,
		versions = excluded.versions,
		summary = excluded.summary`

const upsertRefreshedSQLite = upsertSQLite + `,
		updated_at = excluded.updated_at`

func (s *SQLiteStore) Upsert(ctx context.Context, records []Member) error {
	return s.upsert(ctx, records, false)
}

func (s *SQLiteStore) UpsertRefreshed(ctx context.Context, records []Member) error {
	return s.upsert(ctx, records, true)
}

func (s *SQLiteStore) upsert(ctx context.Context, records []Member, refreshed bool) error {
	if len(records) == 0 {
		s.logger.Info("no members to upsert")
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback()

	query := upsertSQLite
	if refreshed {
		query = upsertRefreshedSQLite
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, m := range records {
		versions, err := marshalVersions(m.Versions)
		if err != nil {
			return err
		}
		created, updated := now, now
		if refreshed {
			created, updated = refreshStamps(m, now)
		}
		if _, err := stmt.ExecContext(ctx,
			m.MemberNo, m.Name, m.Company, m.Title, m.Background,
			m.CompanyURL, m.LinkedinURL, versions, m.Summary,
			db.FormatTime(created), db.FormatTime(updated),
		); err != nil {
			return fmt.Errorf("upserting member %d: %w", m.MemberNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	s.logger.Info("upserted members", zap.Int("count", len(records)), zap.Bool("refreshed", refreshed))
	return nil
}

const selectColumns = `member_no, name, company, title, background, company_url, linkedin_url, versions, summary, created_at, updated_at`

func (s *SQLiteStore) GetByID(ctx context.Context, memberNo int64) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM member_info WHERE member_no = ?", memberNo)

	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting member %d: %w", memberNo, err)
	}
	return m, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, memberNo int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM member_info WHERE member_no = ?", memberNo).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking member %d: %w", memberNo, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetStale(ctx context.Context, version string, ttl time.Duration) ([]Member, error) {
	cutoff := db.FormatTime(s.now().Add(-ttl))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM member_info
		WHERE json_extract(versions, '$."' || ? || '"') = 1
		  AND (created_at = updated_at OR updated_at < ?)
		ORDER BY member_no ASC`, version, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale members for %s: %w", version, err)
	}
	defer rows.Close()

	return collect(rows)
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Member, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.From > 0 {
		clauses = append(clauses, "member_no >= ?")
		args = append(args, filter.From)
	}
	if filter.To > 0 {
		clauses = append(clauses, "member_no <= ?")
		args = append(args, filter.To)
	}

	query := "SELECT " + selectColumns + " FROM member_info"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY member_no ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM member_info").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return n, nil
}

// Close is a no-op; the shared database is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMember(sc scanner) (*Member, error) {
	var (
		m                Member
		versions         string
		created, updated string
	)
	err := sc.Scan(
		&m.MemberNo, &m.Name, &m.Company, &m.Title, &m.Background,
		&m.CompanyURL, &m.LinkedinURL, &versions, &m.Summary,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(versions), &m.Versions); err != nil {
		return nil, fmt.Errorf("decoding versions of member %d: %w", m.MemberNo, err)
	}
	m.CreatedAt = db.ParseTime(created)
	m.UpdatedAt = db.ParseTime(updated)
	return &m, nil
}

func collect(rows *sql.Rows) ([]Member, error) {
	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func marshalVersions(v map[string]bool) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding versions: %w", err)
	}
	return string(b), nil
}
