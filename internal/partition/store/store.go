// Package store holds the storage backends for partitions. A logical database
// groups partitions; each partition is an independent keyspace of records.
//
// Backends return sentinel errors (pkg/platform/sentinel) only; callers
// translate them into domain errors.
package store

import (
	"context"
	"time"

	"voterstore/internal/partition/models"
)

// Store manages partition existence inside logical databases.
type Store interface {
	// ListPartitions returns every partition name in database, sorted.
	ListPartitions(ctx context.Context, database string) ([]string, error)
	// PartitionExists reports whether name exists in database.
	PartitionExists(ctx context.Context, database, name string) (bool, error)
	// OpenPartition returns a handle for an existing partition and registers
	// its indexes. Returns sentinel.ErrNotFound if it does not exist.
	OpenPartition(ctx context.Context, database, name string) (Partition, error)
	// ClonePartition copies source into a new partition target as one atomic
	// server-side operation. Returns sentinel.ErrNotFound when source is
	// missing and sentinel.ErrAlreadyExists when target is already present.
	ClonePartition(ctx context.Context, database, source, target string) error
	// DropPartition deletes name and all its records. Reports false when the
	// partition did not exist.
	DropPartition(ctx context.Context, database, name string) (bool, error)
	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

// Partition is a handle for querying and mutating one partition.
type Partition interface {
	Database() string
	Name() string
	// Get returns sentinel.ErrNotFound if no record has id.
	Get(ctx context.Context, id string) (*models.Record, error)
	// Insert returns sentinel.ErrAlreadyExists if id is taken.
	Insert(ctx context.Context, rec *models.Record) error
	// Replace overwrites an existing record; sentinel.ErrNotFound if missing.
	Replace(ctx context.Context, rec *models.Record) error
	// Page returns records ordered by id (byte order).
	Page(ctx context.Context, q PageQuery) ([]*models.Record, error)
	// Count returns the number of records matching since.
	Count(ctx context.Context, since *time.Time) (int, error)
}

// PageQuery selects a window of records ordered by id. A nil Since matches
// every record; otherwise only records with UpdatedAt strictly after it.
type PageQuery struct {
	Since  *time.Time
	Offset int
	Limit  int
}

// Matches reports whether rec passes the Since filter.
func (q PageQuery) Matches(rec *models.Record) bool {
	return matchesSince(rec, q.Since)
}

func matchesSince(rec *models.Record, since *time.Time) bool {
	return since == nil || rec.UpdatedAt.After(*since)
}
