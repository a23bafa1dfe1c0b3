package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomCatalog is the durable list of bookable rooms used to seed the in-memory registry.
type RoomCatalog interface {
	ListRoomIDs(ctx context.Context) ([]string, error)
	AddRoom(ctx context.Context, id string) error
}

type roomCatalog struct {
	pool *pgxpool.Pool
}

func NewRoomCatalog(pool *pgxpool.Pool) RoomCatalog {
	return &roomCatalog{pool: pool}
}

func (r *roomCatalog) ListRoomIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM rooms WHERE active ORDER BY id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *roomCatalog) AddRoom(ctx context.Context, id string) error {
	const q = `INSERT INTO rooms (id, active) VALUES ($1, true) ON CONFLICT (id) DO UPDATE SET active = true`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
