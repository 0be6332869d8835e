package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"identityvault/internal/identity/models"
	"identityvault/pkg/address"
	dErrors "identityvault/pkg/domain-errors"
	"identityvault/pkg/requestcontext"
)

//go:embed schema.sql
var schemaSQL string

const (
	uniqueViolation   = "23505"
	defaultTxTimeout  = 5 * time.Second
	selectIdentitySQL = `SELECT address, identity_hash, name, reputation, first_active, badges,
       imported_from, source_chain, is_active, is_shared, last_confirmed_at
FROM identities WHERE address = $1`
)

// PostgresStore persists identity records in PostgreSQL.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, timeout: defaultTxTimeout}
}

// EnsureSchema creates the identities table if it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, addr string) (*models.IdentityRecord, bool, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, false, err
	}
	rec, err := scanIdentity(s.db.QueryRowContext(ctx, selectIdentitySQL, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get identity: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, patch models.IdentityPatch) (*models.IdentityRecord, error) {
	key, err := address.Normalize(patch.Address)
	if err != nil {
		return nil, err
	}
	rec := models.NewRecord(key, patch, requestcontext.Now(ctx))
	if err := insertIdentity(ctx, s.db, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, errDuplicate(key)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, addr string, patch models.IdentityPatch) (*models.IdentityRecord, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, err
	}
	var out *models.IdentityRecord
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanIdentity(tx.QueryRowContext(ctx, selectIdentitySQL+" FOR UPDATE", key))
		if errors.Is(err, sql.ErrNoRows) {
			return errMissing(key)
		}
		if err != nil {
			return fmt.Errorf("lock identity: %w", err)
		}
		out = existing.Merge(patch)
		return updateIdentity(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, addr string, patch models.IdentityPatch) (*models.IdentityRecord, bool, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, false, err
	}
	var (
		out     *models.IdentityRecord
		created bool
	)
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanIdentity(tx.QueryRowContext(ctx, selectIdentitySQL+" FOR UPDATE", key))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = models.NewRecord(key, patch, requestcontext.Now(ctx))
			created = true
			return insertIdentity(ctx, tx, out)
		case err != nil:
			return fmt.Errorf("lock identity: %w", err)
		}
		out = existing.Merge(patch)
		return updateIdentity(ctx, tx, out)
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// A concurrent insert won the race; the row lock now serializes us.
			return s.Upsert(ctx, addr, patch)
		}
		return nil, false, err
	}
	return out, created, nil
}

func (s *PostgresStore) runInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertIdentity(ctx context.Context, db execer, rec *models.IdentityRecord) error {
	badges, imported, err := encodeJSONColumns(rec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO identities
    (address, identity_hash, name, reputation, first_active, badges, imported_from, source_chain, is_active, is_shared, last_confirmed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Address, rec.IdentityHash, rec.Name, rec.Reputation, rec.FirstActive, badges, imported,
		rec.SourceChain, rec.IsActive, rec.IsShared, nullTime(rec.LastConfirmedAt))
	return err
}

func updateIdentity(ctx context.Context, db execer, rec *models.IdentityRecord) error {
	badges, imported, err := encodeJSONColumns(rec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE identities SET
    identity_hash = $2, name = $3, reputation = $4, first_active = $5, badges = $6, imported_from = $7,
    source_chain = $8, is_active = $9, is_shared = $10, last_confirmed_at = $11
WHERE address = $1`,
		rec.Address, rec.IdentityHash, rec.Name, rec.Reputation, rec.FirstActive, badges, imported,
		rec.SourceChain, rec.IsActive, rec.IsShared, nullTime(rec.LastConfirmedAt))
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return nil
}

// encodeJSONColumns returns text values; lib/pq would send []byte as bytea.
func encodeJSONColumns(rec *models.IdentityRecord) (string, any, error) {
	badges := rec.Badges
	if badges == nil {
		badges = []models.Badge{}
	}
	badgeBytes, err := json.Marshal(badges)
	if err != nil {
		return "", nil, fmt.Errorf("marshal badges: %w", err)
	}
	var imported any
	if rec.ImportedFrom != nil {
		importedBytes, err := json.Marshal(rec.ImportedFrom)
		if err != nil {
			return "", nil, fmt.Errorf("marshal imported_from: %w", err)
		}
		imported = string(importedBytes)
	}
	return string(badgeBytes), imported, nil
}

func scanIdentity(row *sql.Row) (*models.IdentityRecord, error) {
	var (
		rec           models.IdentityRecord
		badgeBytes    []byte
		importedBytes []byte
		lastConfirmed sql.NullTime
	)
	if err := row.Scan(&rec.Address, &rec.IdentityHash, &rec.Name, &rec.Reputation, &rec.FirstActive,
		&badgeBytes, &importedBytes, &rec.SourceChain, &rec.IsActive, &rec.IsShared, &lastConfirmed); err != nil {
		return nil, err
	}
	if len(badgeBytes) > 0 {
		if err := json.Unmarshal(badgeBytes, &rec.Badges); err != nil {
			return nil, fmt.Errorf("unmarshal badges: %w", err)
		}
	}
	if len(importedBytes) > 0 {
		rec.ImportedFrom = &models.ImportedFrom{}
		if err := json.Unmarshal(importedBytes, rec.ImportedFrom); err != nil {
			return nil, fmt.Errorf("unmarshal imported_from: %w", err)
		}
	}
	if lastConfirmed.Valid {
		ts := lastConfirmed.Time
		rec.LastConfirmedAt = &ts
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
