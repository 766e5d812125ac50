package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/reviewloop/pkg/models"
)

// PostgresStore persists the session record as a single row. The table is
// created lazily on first open.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

const createSessionTable = `
CREATE TABLE IF NOT EXISTS reviewloop_sessions (
	id            INT PRIMARY KEY DEFAULT 1,
	target_id     TEXT NOT NULL,
	cycle         INT NOT NULL,
	last_pushed   TEXT NOT NULL DEFAULT '',
	handled       JSONB NOT NULL DEFAULT '{}'::jsonb,
	started_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT single_row CHECK (id = 1)
)`

// NewPostgresStore connects to Postgres and prepares the session table.
// An empty dsn falls back to the DATABASE_URL environment variable.
func NewPostgresStore(dsn string, log zerolog.Logger) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		return nil, errors.New("postgres session backend requires a DSN or DATABASE_URL")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := db.Exec(createSessionTable); err != nil {
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}

	return &PostgresStore{db: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func (p *PostgresStore) Open(targetID string) (*State, error) {
	row := p.db.QueryRow(`SELECT target_id, cycle, last_pushed, handled, started_at
		FROM reviewloop_sessions WHERE id = 1`)

	var stored State
	var handled []byte
	err := row.Scan(&stored.TargetID, &stored.Cycle, &stored.LastPushed, &handled, &stored.StartedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return reconcile(nil, targetID), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read session row: %w", err)
	}

	if err := json.Unmarshal(handled, &stored.Handled); err != nil {
		p.log.Warn().Err(err).Msg("session handled column corrupt, starting fresh")
		return reconcile(nil, targetID), nil
	}
	return reconcile(&stored, targetID), nil
}

func (p *PostgresStore) Persist(state *State) error {
	if err := validateState(state); err != nil {
		return err
	}
	handled, err := json.Marshal(state.Handled)
	if err != nil {
		return fmt.Errorf("failed to encode handled map: %w", err)
	}

	_, err = p.db.Exec(`INSERT INTO reviewloop_sessions (id, target_id, cycle, last_pushed, handled, started_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			target_id = EXCLUDED.target_id,
			cycle = EXCLUDED.cycle,
			last_pushed = EXCLUDED.last_pushed,
			handled = EXCLUDED.handled,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at`,
		state.TargetID, state.Cycle, state.LastPushed, handled, state.StartedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to persist session row: %w", err)
	}
	return nil
}

func (p *PostgresStore) MarkHandled(state *State, tasks []models.FixTask, revisionID string) error {
	state.markHandled(tasks, revisionID)
	return p.Persist(state)
}

func (p *PostgresStore) IncrementCycle(state *State) (int, error) {
	state.Cycle++
	if err := p.Persist(state); err != nil {
		return 0, err
	}
	return state.Cycle, nil
}

func (p *PostgresStore) Clear(targetID string) error {
	if _, err := p.db.Exec(`DELETE FROM reviewloop_sessions WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear session row: %w", err)
	}
	return nil
}
