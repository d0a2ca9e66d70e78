package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"voterstore/internal/partition/models"
	"voterstore/pkg/platform/sentinel"
	"voterstore/pkg/platform/tx"
)

// Postgres error codes the store maps onto sentinels.
const (
	pgDuplicateTable  = "42P07"
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

const recordColumns = `id, name, external_id, mobile, ward, booth, village, raw, updated_at`

// PostgresStore maps logical databases onto schemas and partitions onto
// tables inside them.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed partition store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreatePartition creates an empty partition (and its schema) if missing.
// Masters are curated outside this service; this is the seeding path for
// tests and local development.
func (s *PostgresStore) CreatePartition(ctx context.Context, database, name string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{database}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			external_id TEXT NOT NULL DEFAULT '',
			mobile TEXT NOT NULL DEFAULT '',
			ward TEXT NOT NULL DEFAULT '',
			booth TEXT NOT NULL DEFAULT '',
			village TEXT NOT NULL DEFAULT '',
			raw JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, tableIdent(database, name)),
	}
	return tx.Run(ctx, s.db, func(ctx context.Context, dbtx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := dbtx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create partition %s.%s: %w", database, name, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListPartitions(ctx context.Context, database string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, database)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partitions: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) PartitionExists(ctx context.Context, database, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`, database, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check partition %s.%s: %w", database, name, err)
	}
	return exists, nil
}

func (s *PostgresStore) OpenPartition(ctx context.Context, database, name string) (Partition, error) {
	exists, err := s.PartitionExists(ctx, database, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	if err := s.ensureIndexes(ctx, database, name); err != nil {
		return nil, err
	}
	return &pgPartition{db: s.db, database: database, name: name, table: tableIdent(database, name)}, nil
}

// ensureIndexes adds the (updated_at, id) index used by delta export unless
// the table already has one, which is the case for clones of indexed masters.
func (s *PostgresStore) ensureIndexes(ctx context.Context, database, name string) error {
	var indexed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = $1 AND tablename = $2 AND indexdef LIKE '%(updated_at, id)'
		)
	`, database, name).Scan(&indexed)
	if err != nil {
		return fmt.Errorf("inspect indexes on %s.%s: %w", database, name, err)
	}
	if indexed {
		return nil
	}
	query := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (updated_at, id)`,
		pgx.Identifier{indexName(name)}.Sanitize(), tableIdent(database, name))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		switch {
		case isPgCode(err, pgUndefinedTable):
			return sentinel.ErrNotFound
		case isPgCode(err, pgDuplicateTable), isPgCode(err, pgUniqueViolation):
			// Lost a race with a concurrent opener; the index exists.
			return nil
		}
		return fmt.Errorf("register indexes on %s.%s: %w", database, name, err)
	}
	return nil
}

func (s *PostgresStore) ClonePartition(ctx context.Context, database, source, target string) error {
	src, dst := tableIdent(database, source), tableIdent(database, target)
	err := tx.Run(ctx, s.db, func(ctx context.Context, dbtx *sql.Tx) error {
		if _, err := dbtx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (LIKE %s INCLUDING ALL)`, dst, src)); err != nil {
			return err
		}
		_, err := dbtx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s`, dst, src))
		return err
	})
	if err != nil {
		return mapDDLError(err, "clone %s into %s", source, target)
	}
	return nil
}

func (s *PostgresStore) DropPartition(ctx context.Context, database, name string) (bool, error) {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, tableIdent(database, name)))
	if err != nil {
		if isPgCode(err, pgUndefinedTable) {
			return false, nil
		}
		return false, fmt.Errorf("drop partition %s.%s: %w", database, name, err)
	}
	return true, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type pgPartition struct {
	db       *sql.DB
	database string
	name     string
	table    string
}

func (p *pgPartition) Database() string { return p.database }
func (p *pgPartition) Name() string     { return p.name }

func (p *pgPartition) Get(ctx context.Context, id string) (*models.Record, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, recordColumns, p.table), id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, p.wrap(err, "get record")
	}
	return rec, nil
}

func (p *pgPartition) Insert(ctx context.Context, rec *models.Record) error {
	raw, err := encodeRaw(rec.Raw)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`, p.table, recordColumns),
		rec.ID, rec.Name, rec.ExternalID, rec.Mobile, rec.Ward, rec.Booth, rec.Village, raw, rec.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return sentinel.ErrAlreadyExists
		}
		return p.wrap(err, "insert record")
	}
	return nil
}

func (p *pgPartition) Replace(ctx context.Context, rec *models.Record) error {
	raw, err := encodeRaw(rec.Raw)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET
			name = $2, external_id = $3, mobile = $4, ward = $5,
			booth = $6, village = $7, raw = $8::jsonb, updated_at = $9
		WHERE id = $1
	`, p.table),
		rec.ID, rec.Name, rec.ExternalID, rec.Mobile, rec.Ward, rec.Booth, rec.Village, raw, rec.UpdatedAt)
	if err != nil {
		return p.wrap(err, "replace record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return p.wrap(err, "replace record")
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (p *pgPartition) Page(ctx context.Context, q PageQuery) ([]*models.Record, error) {
	limit := sql.NullInt64{Int64: int64(q.Limit), Valid: q.Limit > 0}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1::timestamptz IS NULL OR updated_at > $1)
		ORDER BY id COLLATE "C"
		OFFSET $2 LIMIT $3
	`, recordColumns, p.table), sinceParam(q.Since), q.Offset, limit)
	if err != nil {
		return nil, p.wrap(err, "page records")
	}
	defer rows.Close()

	out := make([]*models.Record, 0, max(q.Limit, 0))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, p.wrap(err, "scan record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap(err, "iterate records")
	}
	return out, nil
}

func (p *pgPartition) Count(ctx context.Context, since *time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT count(*) FROM %s
		WHERE ($1::timestamptz IS NULL OR updated_at > $1)
	`, p.table), sinceParam(since)).Scan(&n)
	if err != nil {
		return 0, p.wrap(err, "count records")
	}
	return n, nil
}

func (p *pgPartition) wrap(err error, op string) error {
	if isPgCode(err, pgUndefinedTable) {
		return sentinel.ErrNotFound
	}
	return fmt.Errorf("%s in %s.%s: %w", op, p.database, p.name, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec models.Record
		raw []byte
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.ExternalID, &rec.Mobile, &rec.Ward,
		&rec.Booth, &rec.Village, &raw, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		var bag map[string]any
		if err := json.Unmarshal(raw, &bag); err != nil {
			return nil, fmt.Errorf("decode raw for %s: %w", rec.ID, err)
		}
		if len(bag) > 0 {
			rec.Raw = bag
		}
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func encodeRaw(raw map[string]any) (string, error) {
	if len(raw) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("encode raw: %w", err)
	}
	return string(b), nil
}

func sinceParam(since *time.Time) sql.NullTime {
	if since == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *since, Valid: true}
}

func tableIdent(database, name string) string {
	return pgx.Identifier{database, name}.Sanitize()
}

// indexName derives a per-table index name that stays under the 63-byte
// identifier limit without colliding after truncation.
func indexName(table string) string {
	prefix := table
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	return fmt.Sprintf("%s_upd_%08x", prefix, crc32.ChecksumIEEE([]byte(table)))
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func mapDDLError(err error, format string, args ...any) error {
	switch {
	case isPgCode(err, pgDuplicateTable), isPgCode(err, pgUniqueViolation):
		// Concurrent CREATE TABLE can also surface as a pg_type unique violation.
		return sentinel.ErrAlreadyExists
	case isPgCode(err, pgUndefinedTable):
		return sentinel.ErrNotFound
	default:
		return fmt.Errorf(format+": %w", append(args, err)...)
	}
}
