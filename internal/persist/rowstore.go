package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// RowStore is the minimal backend the executor drives. *DB implements
// it against Postgres; tests substitute an in-memory fake so the
// queue/handler-dispatch logic is verifiable without a live database.
type RowStore interface {
	Put(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string, body []byte) error
	Get(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string) ([]byte, error)
	Delete(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string) error
	EndInterval(ctx context.Context, group string, interval Interval) error
}

// currentGeneration returns group/interval's live generation, defaulting
// to 1 when no rotation has happened yet (matching the schema's
// DEFAULT 1 on interval_rows.generation).
func (d *DB) currentGeneration(ctx context.Context, group string, interval Interval) (int64, error) {
	var gen int64
	err := d.pool.QueryRow(ctx,
		`SELECT generation FROM interval_rows WHERE arena_group=$1 AND interval=$2`,
		group, int16(interval)).Scan(&gen)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	return gen, err
}

// Put writes or replaces body at the owner/group/interval/key's
// current generation.
func (d *DB) Put(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string, body []byte) error {
	gen, err := d.currentGeneration(ctx, group, interval)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO persist_rows (owner_type, owner_id, arena_group, interval, generation, key, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (owner_type, owner_id, arena_group, interval, generation, key)
		DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, int16(owner), ownerID, group, int16(interval), gen, key, body)
	return err
}

// Get reads body at the owner/group/interval/key's current generation,
// returning (nil, nil) if no row exists.
func (d *DB) Get(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string) ([]byte, error) {
	gen, err := d.currentGeneration(ctx, group, interval)
	if err != nil {
		return nil, err
	}
	var body []byte
	err = d.pool.QueryRow(ctx, `
		SELECT body FROM persist_rows
		WHERE owner_type=$1 AND owner_id=$2 AND arena_group=$3 AND interval=$4 AND generation=$5 AND key=$6
	`, int16(owner), ownerID, group, int16(interval), gen, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return body, err
}

// Delete removes the row at the current generation, per §4.7: a
// handler writing zero bytes during a put deletes its key's row
// rather than storing an empty body.
func (d *DB) Delete(ctx context.Context, owner OwnerType, ownerID int64, group string, interval Interval, key string) error {
	gen, err := d.currentGeneration(ctx, group, interval)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx, `
		DELETE FROM persist_rows
		WHERE owner_type=$1 AND owner_id=$2 AND arena_group=$3 AND interval=$4 AND generation=$5 AND key=$6
	`, int16(owner), ownerID, group, int16(interval), gen, key)
	return err
}

// EndInterval atomically rotates group/interval onto a fresh
// generation (§6 "create_interval -> rotate_current"): prior rows stay
// queryable under their own generation, and every subsequent Put/Get
// for this group/interval addresses the new one.
func (d *DB) EndInterval(ctx context.Context, group string, interval Interval) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO interval_rows (arena_group, interval, generation, rotated_at)
		VALUES ($1, $2, 2, now())
		ON CONFLICT (arena_group, interval)
		DO UPDATE SET generation = interval_rows.generation + 1, rotated_at = now()
	`, group, int16(interval))
	return err
}
