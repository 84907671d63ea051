package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"quickdeploy/api/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("user not found")

type DB struct {
	pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Migrate applies the embedded goose migrations. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *DB) error {
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := goose.UpContext(runCtx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Credential returns the stored upstream token for a caller. A caller
// with no token yields an empty string and no error.
func (db *DB) Credential(ctx context.Context, userID string) (string, error) {
	var token string
	err := db.pool.QueryRow(ctx,
		`SELECT github_token FROM users WHERE id = $1`, userID,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return token, nil
}

// RecordDeployment bumps the caller's counter in one statement so
// concurrent jobs never lose an increment.
func (db *DB) RecordDeployment(ctx context.Context, userID string, at time.Time) error {
	tag, err := db.pool.Exec(ctx, `
		UPDATE users
		SET deployments = deployments + 1, last_deployed_at = $2
		WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("record deployment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx, `
		SELECT id, github_id, username, email, avatar_url, deployments, last_deployed_at, created_at
		FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.GitHubID, &u.Username, &u.Email, &u.AvatarURL,
		&u.Deployments, &u.LastDeployedAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpsertUser stores a user keyed by GitHub ID, replacing the token on
// conflict. It returns the user's ID.
func (db *DB) UpsertUser(ctx context.Context, u *model.User, token string) (string, error) {
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := db.pool.QueryRow(ctx, `
		INSERT INTO users (id, github_id, username, email, avatar_url, github_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (github_id) DO UPDATE
		SET github_token = EXCLUDED.github_token,
		    username = EXCLUDED.username,
		    email = CASE WHEN users.email = '' THEN EXCLUDED.email ELSE users.email END
		RETURNING id`,
		id, u.GitHubID, u.Username, u.Email, u.AvatarURL, token,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}
