package members

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore implements Store on a Postgres member_info table with a
// JSONB versions column.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

const createPostgresTable = `
	CREATE TABLE IF NOT EXISTS member_info (
		member_no BIGINT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		company VARCHAR(255) NOT NULL DEFAULT '',
		title VARCHAR(255) NOT NULL DEFAULT '',
		background TEXT NOT NULL DEFAULT '',
		company_url TEXT NOT NULL DEFAULT '',
		linkedin_url TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		versions JSONB NOT NULL DEFAULT '{}'::jsonb
	)`

// NewPostgresStore connects to dsn and makes sure member_info exists.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createPostgresTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating member_info: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger, now: time.Now}, nil
}

const upsertPostgres = `
	INSERT INTO member_info (
		member_no, name, company, title, background,
		company_url, linkedin_url, summary, versions,
		created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)
	ON CONFLICT (member_no) DO UPDATE SET
		name = EXCLUDED.name,
		company = EXCLUDED.company,
		title = EXCLUDED.title,
		background = EXCLUDED.background,
		company_url = EXCLUDED.company_url,
		linkedin_url = EXCLUDED.linkedin_url,
		summary = EXCLUDED.summary,
		versions = EXCLUDED.versions`

const upsertRefreshedPostgres = upsertPostgres + `,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) Upsert(ctx context.Context, records []Member) error {
	return s.upsert(ctx, records, false)
}

func (s *PostgresStore) UpsertRefreshed(ctx context.Context, records []Member) error {
	return s.upsert(ctx, records, true)
}

func (s *PostgresStore) upsert(ctx context.Context, records []Member, refreshed bool) error {
	if len(records) == 0 {
		s.logger.Info("no members to upsert")
		return nil
	}

	query := upsertPostgres
	if refreshed {
		query = upsertRefreshedPostgres
	}
	now := s.now().UTC()
	batch := &pgx.Batch{}
	for _, m := range records {
		versions, err := marshalVersions(m.Versions)
		if err != nil {
			return err
		}
		created, updated := now, now
		if refreshed {
			created, updated = refreshStamps(m, now)
		}
		batch.Queue(query,
			m.MemberNo, m.Name, m.Company, m.Title, m.Background,
			m.CompanyURL, m.LinkedinURL, m.Summary, versions, created, updated,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting members: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	s.logger.Info("upserted members", zap.Int("count", len(records)), zap.Bool("refreshed", refreshed))
	return nil
}

const pgColumns = `member_no, name, company, title, background, company_url, linkedin_url, versions, summary, created_at, updated_at`

func (s *PostgresStore) GetByID(ctx context.Context, memberNo int64) (*Member, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgColumns+" FROM member_info WHERE member_no = $1", memberNo)
	m, err := scanPgMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting member %d: %w", memberNo, err)
	}
	return m, nil
}

func (s *PostgresStore) Exists(ctx context.Context, memberNo int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM member_info WHERE member_no = $1)", memberNo).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking member %d: %w", memberNo, err)
	}
	return exists, nil
}

func (s *PostgresStore) GetStale(ctx context.Context, version string, ttl time.Duration) ([]Member, error) {
	cutoff := s.now().Add(-ttl).UTC()
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgColumns+` FROM member_info
		WHERE versions -> $1 = 'true'::jsonb
		  AND (created_at = updated_at OR updated_at < $2)
		ORDER BY member_no`, version, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale members for %s: %w", version, err)
	}
	return collectPg(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]Member, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.From > 0 {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("member_no >= $%d", len(args)))
	}
	if filter.To > 0 {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("member_no <= $%d", len(args)))
	}

	query := "SELECT " + pgColumns + " FROM member_info"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY member_no"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return collectPg(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM member_info").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgMember(row pgx.Row) (*Member, error) {
	var (
		m        Member
		versions []byte
	)
	err := row.Scan(
		&m.MemberNo, &m.Name, &m.Company, &m.Title, &m.Background,
		&m.CompanyURL, &m.LinkedinURL, &versions, &m.Summary,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(versions) > 0 {
		if err := json.Unmarshal(versions, &m.Versions); err != nil {
			return nil, fmt.Errorf("decoding versions of member %d: %w", m.MemberNo, err)
		}
	}
	return &m, nil
}

func collectPg(rows pgx.Rows) ([]Member, error) {
	defer rows.Close()
	var out []Member
	for rows.Next() {
		m, err := scanPgMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
