package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quietridge/merklesentry/internal/apperr"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS merkle_roots (
    id          BIGSERIAL PRIMARY KEY,
    root_hash   TEXT UNIQUE NOT NULL,
    item_count  INTEGER NOT NULL CHECK (item_count > 0),
    source_path TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS merkle_tree_data (
    root_id    BIGINT PRIMARY KEY REFERENCES merkle_roots(id) ON DELETE CASCADE,
    tree_json  JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// RelationalConfig configures the Postgres-backed Backend variant.
type RelationalConfig struct {
	URL      string
	PoolSize int32
}

// Relational is Storage Backend Variant A: two tables, a transactional
// write path, and a bounded connection pool. Its Open/migrate-on-start
// shape follows the same "apply schema idempotently on open" pattern as
// roach88-nysm's internal/store/store.go (a full pack repo, consulted for
// this component since the teacher has no relational storage layer).
type Relational struct {
	pool *pgxpool.Pool
}

// OpenRelational connects to Postgres, applies the schema idempotently, and
// returns a ready Backend.
func OpenRelational(ctx context.Context, cfg RelationalConfig) (*Relational, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalid, "storage.OpenRelational", err)
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = cfg.PoolSize
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "storage.OpenRelational", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.New(apperr.KindIO, "storage.OpenRelational", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, apperr.New(apperr.KindIO, "storage.OpenRelational", fmt.Errorf("apply schema: %w", err))
	}
	return &Relational{pool: pool}, nil
}

func (r *Relational) Close() error {
	r.pool.Close()
	return nil
}

func (r *Relational) GetLatestRootHash(ctx context.Context) (string, bool, error) {
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT root_hash FROM merkle_roots ORDER BY created_at DESC LIMIT 1`,
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.New(apperr.KindIO, "storage.Relational.GetLatestRootHash", err)
	}
	return hash, true, nil
}

func (r *Relational) StoreTree(ctx context.Context, in StoreInput) (RootRecord, error) {
	if err := in.Validate(); err != nil {
		return RootRecord{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.Relational.StoreTree", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	var id int64
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`INSERT INTO merkle_roots (root_hash, item_count, source_path)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		in.RootHash, in.ItemCount, in.SourcePath,
	).Scan(&id, &createdAt)
	if err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.Relational.StoreTree", fmt.Errorf("insert root: %w", err))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO merkle_tree_data (root_id, tree_json) VALUES ($1, $2)`,
		id, in.Body,
	); err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.Relational.StoreTree", fmt.Errorf("insert tree data: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return RootRecord{}, apperr.New(apperr.KindIO, "storage.Relational.StoreTree", fmt.Errorf("commit: %w", err))
	}

	return RootRecord{
		ID:         fmt.Sprintf("%d", id),
		RootHash:   in.RootHash,
		ItemCount:  in.ItemCount,
		SourcePath: in.SourcePath,
		CreatedAt:  createdAt,
	}, nil
}

func (r *Relational) GetTreeByRootHash(ctx context.Context, rootHash string) (FullTree, bool, error) {
	var ft FullTree
	err := r.pool.QueryRow(ctx,
		`SELECT r.id, r.root_hash, r.item_count, r.source_path, r.created_at, d.tree_json
		 FROM merkle_roots r JOIN merkle_tree_data d ON d.root_id = r.id
		 WHERE r.root_hash = $1`,
		rootHash,
	).Scan(&ft.ID, &ft.RootHash, &ft.ItemCount, &ft.SourcePath, &ft.CreatedAt, &ft.TreeBody)
	if errors.Is(err, pgx.ErrNoRows) {
		return FullTree{}, false, nil
	}
	if err != nil {
		return FullTree{}, false, apperr.New(apperr.KindIO, "storage.Relational.GetTreeByRootHash", err)
	}
	return ft, true, nil
}

func (r *Relational) GetRecentRoots(ctx context.Context, limit int) ([]RootRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, root_hash, item_count, source_path, created_at
		 FROM merkle_roots ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, apperr.New(apperr.KindIO, "storage.Relational.GetRecentRoots", err)
	}
	defer rows.Close()

	var out []RootRecord
	for rows.Next() {
		var rec RootRecord
		var id int64
		if err := rows.Scan(&id, &rec.RootHash, &rec.ItemCount, &rec.SourcePath, &rec.CreatedAt); err != nil {
			return nil, apperr.New(apperr.KindIO, "storage.Relational.GetRecentRoots", err)
		}
		rec.ID = fmt.Sprintf("%d", id)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Relational) TestConnection(ctx context.Context) ConnectionStatus {
	if err := r.pool.Ping(ctx); err != nil {
		return ConnectionStatus{Connected: false, Error: err.Error()}
	}
	return ConnectionStatus{Connected: true, Timestamp: time.Now().UTC()}
}

func (r *Relational) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var latest, earliest *time.Time
	var avg *float64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*), max(created_at), min(created_at), avg(item_count) FROM merkle_roots`,
	).Scan(&s.TotalTrees, &latest, &earliest, &avg)
	if err != nil {
		return Stats{}, apperr.New(apperr.KindIO, "storage.Relational.Stats", err)
	}
	if latest != nil {
		s.LatestTree = *latest
	}
	if earliest != nil {
		s.EarliestTree = *earliest
	}
	if avg != nil {
		s.AvgItemCount = *avg
	}
	return s, nil
}
