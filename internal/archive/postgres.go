package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRecorder writes finished games to the game_results table.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(databaseURL string) (*PostgresRecorder, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresRecorder{db: db}, nil
}

func (r *PostgresRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the results table when it does not exist yet.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS game_results (
		id          BIGSERIAL PRIMARY KEY,
		room_id     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		winner      TEXT NOT NULL DEFAULT '',
		move_count  INTEGER NOT NULL DEFAULT 0,
		finished_at TIMESTAMPTZ NOT NULL
	)`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

func (r *PostgresRecorder) SaveResult(ctx context.Context, res Result) error {
	if r == nil || r.db == nil {
		return nil
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	q := `INSERT INTO game_results (room_id, outcome, winner, move_count, finished_at)
	      VALUES ($1,$2,$3,$4,$5)`
	_, err := r.db.ExecContext(ctx, q,
		res.RoomID,
		strings.TrimSpace(res.Outcome),
		strings.TrimSpace(res.Winner),
		res.MoveCount,
		finished,
	)
	return err
}
