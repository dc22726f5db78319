package members

import (
	"context"
	"time"
)

// Store persists member records keyed by member_no.
type Store interface {
	// Upsert inserts or updates every record by member_no. An empty slice
	// is a no-op. Updates keep updated_at, so editing a record does not
	// count as refreshing it.
	Upsert(ctx context.Context, records []Member) error

	// UpsertRefreshed writes records like Upsert and marks them refreshed
	// now, which takes them out of GetStale until their ttl expires.
	UpsertRefreshed(ctx context.Context, records []Member) error

	// GetByID returns the record, or nil if it does not exist.
	GetByID(ctx context.Context, memberNo int64) (*Member, error)

	// Exists reports whether a record with memberNo is stored.
	Exists(ctx context.Context, memberNo int64) (bool, error)

	// GetStale returns records flagged for version that were never
	// refreshed or were last refreshed more than ttl ago, by member_no.
	GetStale(ctx context.Context, version string, ttl time.Duration) ([]Member, error)

	// List returns records matching filter, by member_no.
	List(ctx context.Context, filter ListFilter) ([]Member, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}

// ListFilter narrows List. Zero values mean unbounded.
type ListFilter struct {
	From   int64
	To     int64
	Limit  int
	Offset int
}

// refreshStamps returns the created_at and updated_at to write for a record
// the pipeline just refreshed. updated_at always ends up after created_at so
// the record no longer reads as never refreshed.
func refreshStamps(m Member, now time.Time) (created, updated time.Time) {
	// Both stores keep microseconds.
	now = now.Truncate(time.Microsecond)
	created = m.CreatedAt.Truncate(time.Microsecond)
	if created.IsZero() || created.After(now) {
		created = now.Add(-time.Microsecond)
	}
	updated = now
	if !updated.After(created) {
		updated = created.Add(time.Microsecond)
	}
	return created.UTC(), updated.UTC()
}
