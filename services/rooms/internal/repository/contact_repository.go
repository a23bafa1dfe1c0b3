package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

type Contact struct {
	UserID string
	Email  string
	Name   string
}

type ContactRepository interface {
	FindByUserID(ctx context.Context, userID string) (*Contact, error)
}

type contactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) ContactRepository {
	return &contactRepository{pool: pool}
}

func (r *contactRepository) FindByUserID(ctx context.Context, userID string) (*Contact, error) {
	const q = `SELECT id::text, email, name FROM users WHERE id::text = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var c Contact
	err := r.pool.QueryRow(ctx, q, userID).Scan(&c.UserID, &c.Email, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
