// Package learning stores brightness samples taught by the household, and derives a target brightness from them.
package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"math"
	"time"
)

// DefaultWindow is the number of most recent samples that make up a Target.
const DefaultWindow = 10

var (
	ErrNotFound  = errors.New("sample not found")
	ErrNoSamples = errors.New("no samples")
)

// A Sample is a brightness that was chosen for a room under a condition (e.g. "overcast").
type Sample struct {
	ID         int64     `db:"id"`
	Room       string    `db:"room"`
	Condition  string    `db:"condition"`
	Brightness int       `db:"brightness"`
	CreatedAt  time.Time `db:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room TEXT NOT NULL,
	condition TEXT NOT NULL,
	brightness INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_room_condition ON samples (room, condition, created_at);
`

// Store keeps Samples in a sqlite database.
type Store struct {
	db     *sqlx.DB
	Window int
}

// Open opens the sqlite database at path, creating it if needed. Use ":memory:" for a transient database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// sqlite allows one writer. an in-memory database only exists for the connection that created it.
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, Window: DefaultWindow}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a new Sample. A zero CreatedAt is set to the current time.
func (s *Store) Add(ctx context.Context, sample Sample) (Sample, error) {
	if sample.Room == "" || sample.Condition == "" {
		return Sample{}, errors.New("room and condition are required")
	}
	if sample.Brightness < 0 || sample.Brightness > 100 {
		return Sample{}, fmt.Errorf("invalid brightness: %d", sample.Brightness)
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now()
	}
	sample.CreatedAt = sample.CreatedAt.UTC()

	result, err := s.db.NamedExecContext(ctx,
		`INSERT INTO samples (room, condition, brightness, created_at) VALUES (:room, :condition, :brightness, :created_at)`,
		sample,
	)
	if err != nil {
		return Sample{}, fmt.Errorf("add sample: %w", err)
	}
	if sample.ID, err = result.LastInsertId(); err != nil {
		return Sample{}, fmt.Errorf("add sample: %w", err)
	}
	return sample, nil
}

// List returns the Samples for a room and condition, most recent first. An empty room or condition matches all.
func (s *Store) List(ctx context.Context, room, condition string) ([]Sample, error) {
	var samples []Sample
	err := s.db.SelectContext(ctx, &samples, `
		SELECT id, room, condition, brightness, created_at FROM samples
		WHERE (? = '' OR room = ?) AND (? = '' OR condition = ?)
		ORDER BY created_at DESC, id DESC`,
		room, room, condition, condition,
	)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return samples, nil
}

// Delete removes a Sample.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sample: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%d: %w", id, ErrNotFound)
	}
	return nil
}

// Target returns the mean brightness of the most recent Samples for a room and condition.
func (s *Store) Target(ctx context.Context, room, condition string) (int, error) {
	window := s.Window
	if window <= 0 {
		window = DefaultWindow
	}
	var mean sql.NullFloat64
	err := s.db.GetContext(ctx, &mean, `
		SELECT AVG(brightness) FROM (
			SELECT brightness FROM samples WHERE room = ? AND condition = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		)`,
		room, condition, window,
	)
	if err != nil {
		return 0, fmt.Errorf("target: %w", err)
	}
	if !mean.Valid {
		return 0, fmt.Errorf("%s/%s: %w", room, condition, ErrNoSamples)
	}
	return int(math.Round(mean.Float64)), nil
}
