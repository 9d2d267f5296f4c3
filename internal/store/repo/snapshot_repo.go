package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/auth/entity"
	"github.com/davidschubert/nuxt-appwrite-server-claudeai/internal/store"
)

// Expected table schema (created by EnsureTable):
// CREATE TABLE auth_snapshots (
//   client_id TEXT PRIMARY KEY,
//   user_json JSONB,
//   is_authenticated BOOLEAN NOT NULL DEFAULT false,
//   updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );

type snapshotRow struct {
	ClientID        string         `db:"client_id"`
	UserJSON        sql.NullString `db:"user_json"`
	IsAuthenticated bool           `db:"is_authenticated"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

type SnapshotRepo struct {
	db *sqlx.DB
}

func NewSnapshotRepo(db *sqlx.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS auth_snapshots (
		client_id text PRIMARY KEY,
		user_json jsonb,
		is_authenticated boolean NOT NULL DEFAULT false,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`)
	return err
}

func (r *SnapshotRepo) Save(ctx context.Context, clientID string, snap store.Snapshot) error {
	row, err := toRow(clientID, snap)
	if err != nil {
		return err
	}
	query := `INSERT INTO auth_snapshots (client_id, user_json, is_authenticated, updated_at)
		VALUES (:client_id, :user_json, :is_authenticated, :updated_at)
		ON CONFLICT (client_id) DO UPDATE SET
			user_json = EXCLUDED.user_json,
			is_authenticated = EXCLUDED.is_authenticated,
			updated_at = EXCLUDED.updated_at`
	_, err = r.db.NamedExecContext(ctx, query, row)
	return err
}

// Load returns nil, nil when clientID has no snapshot.
func (r *SnapshotRepo) Load(ctx context.Context, clientID string) (*store.Snapshot, error) {
	var row snapshotRow
	err := r.db.GetContext(ctx, &row,
		`SELECT client_id, user_json, is_authenticated, updated_at FROM auth_snapshots WHERE client_id = $1`, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (r *SnapshotRepo) Clear(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM auth_snapshots WHERE client_id = $1`, clientID)
	return err
}

// For binds the repo to one client, yielding a store.Persister.
func (r *SnapshotRepo) For(clientID string) store.Persister {
	return &clientPersister{repo: r, clientID: clientID}
}

type clientPersister struct {
	repo     *SnapshotRepo
	clientID string
}

func (p *clientPersister) Save(ctx context.Context, snap store.Snapshot) error {
	return p.repo.Save(ctx, p.clientID, snap)
}

func (p *clientPersister) Load(ctx context.Context) (*store.Snapshot, error) {
	return p.repo.Load(ctx, p.clientID)
}

func (p *clientPersister) Clear(ctx context.Context) error {
	return p.repo.Clear(ctx, p.clientID)
}

func toRow(clientID string, snap store.Snapshot) (snapshotRow, error) {
	row := snapshotRow{ClientID: clientID, IsAuthenticated: snap.IsAuthenticated, UpdatedAt: time.Now().UTC()}
	if snap.User != nil {
		raw, err := json.Marshal(snap.User)
		if err != nil {
			return row, fmt.Errorf("encode snapshot user: %w", err)
		}
		row.UserJSON = sql.NullString{String: string(raw), Valid: true}
	}
	return row, nil
}

func fromRow(row snapshotRow) (*store.Snapshot, error) {
	snap := &store.Snapshot{IsAuthenticated: row.IsAuthenticated}
	if row.UserJSON.Valid && row.UserJSON.String != "" && row.UserJSON.String != "null" {
		var u entity.User
		if err := json.Unmarshal([]byte(row.UserJSON.String), &u); err != nil {
			return nil, fmt.Errorf("decode snapshot user: %w", err)
		}
		snap.User = &u
	}
	return snap, nil
}
