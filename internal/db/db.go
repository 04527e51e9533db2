package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chicommute/internal/schedule"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// One JSONB document per user, mirroring the { schedules: [...] } document
// the web client used to write.
const createSchedulesTable = `
CREATE TABLE IF NOT EXISTS user_schedules (
  user_id    text PRIMARY KEY,
  schedules  jsonb NOT NULL DEFAULT '[]'::jsonb,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

// Migrate creates the tables the service needs. It is safe to run on every
// start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createSchedulesTable); err != nil {
		return fmt.Errorf("create user_schedules: %w", err)
	}
	return nil
}

// ScheduleStore implements schedule.Store on Postgres.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

func (s *ScheduleStore) Save(ctx context.Context, userID string, items []schedule.Item) error {
	if items == nil {
		items = []schedule.Item{}
	}
	doc, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode schedules: %w", err)
	}
	q := `
INSERT INTO user_schedules (user_id, schedules, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (user_id) DO UPDATE
SET schedules = EXCLUDED.schedules, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, userID, string(doc)); err != nil {
		return fmt.Errorf("upsert schedules: %w", err)
	}
	return nil
}

// Load returns an empty list when the user has no document yet.
func (s *ScheduleStore) Load(ctx context.Context, userID string) ([]schedule.Item, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT schedules FROM user_schedules WHERE user_id = $1`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return []schedule.Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	var items []schedule.Item
	if err := json.Unmarshal(doc, &items); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	if items == nil {
		items = []schedule.Item{}
	}
	return items, nil
}
