package journal

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"identityvault/internal/identity/orchestrator"
	dErrors "identityvault/pkg/domain-errors"
)

//go:embed schema.sql
var schema string

// PostgresStore writes entries through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operation_journal
			(operation_id, kind, address, from_state, to_state, tx_hash, error_code, at, elapsed_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.OperationID, string(e.Kind), e.Address, string(e.From), string(e.To),
		e.TxHash, string(e.ErrorCode), e.At, e.Elapsed.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, addr string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT operation_id, kind, address, from_state, to_state, tx_hash, error_code, at, elapsed_ns
		FROM operation_journal
		WHERE address = $1
		ORDER BY id DESC
		LIMIT $2`, addr, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e                  Entry
		kind, from, to, ec string
		at                 time.Time
		elapsed            int64
	)
	if err := row.Scan(&e.OperationID, &kind, &e.Address, &from, &to, &e.TxHash, &ec, &at, &elapsed); err != nil {
		return Entry{}, err
	}
	e.Kind = orchestrator.Kind(kind)
	e.From = orchestrator.State(from)
	e.To = orchestrator.State(to)
	e.ErrorCode = dErrors.Code(ec)
	e.At = at.UTC()
	e.Elapsed = time.Duration(elapsed)
	return e, nil
}
