package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/discussion"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "roundtable.store"

// timeLayout has a fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Session statuses
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// ErrSessionNotFound is returned for unknown or ended sessions
var ErrSessionNotFound = errors.New("session not found")

// Session is a persisted discussion
type Session struct {
	ID           string             `json:"id"`
	Topic        string             `json:"topic"`
	AgentKeys    []string           `json:"agent_keys"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model"`
	CurrentRound int                `json:"current_round"`
	State        *discussion.Export `json:"state,omitempty"`
	FileContext  string             `json:"file_context,omitempty"`
	Status       string             `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewSession describes a session to create
type NewSession struct {
	Topic       string
	AgentKeys   []string
	Provider    string
	Model       string
	FileContext string
	State       discussion.Export
}

// Receipt is the usage record of one completed turn
type Receipt struct {
	SessionID    string
	Persona      string
	Round        int
	InputTokens  int
	OutputTokens int
	Provider     string
	Model        string
}

// Store is the SQLite-backed persistence layer
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Config holds store configuration
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// Open opens or creates the database and applies the schema
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{
		db:     db,
		logger: cfg.Logger.With().Str("component", "store").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.logger.Info().Str("path", cfg.Path).Msg("Store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			agent_keys TEXT NOT NULL DEFAULT '[]',
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			current_round INTEGER NOT NULL DEFAULT 1,
			discussion_state TEXT NOT NULL DEFAULT '{}',
			file_context TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

		CREATE TABLE IF NOT EXISTS chat_receipts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			persona TEXT NOT NULL,
			round_num INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			estimated_cost REAL NOT NULL DEFAULT 0.0,
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_receipts_session ON chat_receipts(session_id);
		CREATE INDEX IF NOT EXISTS idx_receipts_timestamp ON chat_receipts(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// observe wraps one store operation in a span and records its metrics
func (s *Store) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "store."+op, attribute.String("op", op))
	start := time.Now()
	err := fn(ctx)
	observability.RecordStoreOp(op, time.Since(start), err)
	tracing.EndSpan(span, err)
	return err
}

// CreateSession inserts an active session and returns its id
func (s *Store) CreateSession(ctx context.Context, in NewSession) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	keys, err := json.Marshal(in.AgentKeys)
	if err != nil {
		return "", fmt.Errorf("failed to encode agent keys: %w", err)
	}
	state, err := json.Marshal(in.State)
	if err != nil {
		return "", fmt.Errorf("failed to encode discussion state: %w", err)
	}

	err = s.observe(ctx, "create_session", func(ctx context.Context) error {
		now := s.timestamp()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, topic, agent_keys, provider, model, current_round,
				discussion_state, file_context, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.Topic, string(keys), in.Provider, in.Model, max(in.State.CurrentRound, 1),
			string(state), in.FileContext, StatusActive, now, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// GetSession loads an active session
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess                          Session
		keys, state, created, updated string
	)
	err := s.observe(ctx, "get_session", func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, topic, agent_keys, provider, model, current_round,
				discussion_state, file_context, status, created_at, updated_at
			FROM sessions WHERE id = ? AND status = ?`, id, StatusActive).
			Scan(&sess.ID, &sess.Topic, &keys, &sess.Provider, &sess.Model, &sess.CurrentRound,
				&state, &sess.FileContext, &sess.Status, &created, &updated)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := json.Unmarshal([]byte(keys), &sess.AgentKeys); err != nil {
		return nil, fmt.Errorf("failed to decode agent keys: %w", err)
	}
	if state != "" && state != "{}" {
		var export discussion.Export
		if err := json.Unmarshal([]byte(state), &export); err != nil {
			return nil, fmt.Errorf("failed to decode discussion state: %w", err)
		}
		sess.State = &export
	}
	sess.CreatedAt, _ = time.Parse(timeLayout, created)
	sess.UpdatedAt, _ = time.Parse(timeLayout, updated)

	return &sess, nil
}

// SaveState overwrites the stored export of an active session
func (s *Store) SaveState(ctx context.Context, id string, state discussion.Export) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode discussion state: %w", err)
	}

	var affected int64
	err = s.observe(ctx, "save_state", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET discussion_state = ?, current_round = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			string(data), state.CurrentRound, s.timestamp(), id, StatusActive)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// EndSession marks a session ended and drops its saved state
func (s *Store) EndSession(ctx context.Context, id string) error {
	err := s.observe(ctx, "end_session", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET status = ?, discussion_state = '{}', updated_at = ?
			WHERE id = ?`, StatusEnded, s.timestamp(), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// LogReceipt records the usage of one turn and returns its estimated cost
func (s *Store) LogReceipt(ctx context.Context, r Receipt) (float64, error) {
	cost := EstimateCost(r.Model, r.InputTokens, r.OutputTokens)
	err := s.observe(ctx, "log_receipt", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO chat_receipts (session_id, persona, round_num, input_tokens, output_tokens,
				estimated_cost, provider, model, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SessionID, r.Persona, r.Round, r.InputTokens, r.OutputTokens,
			cost, r.Provider, r.Model, s.timestamp())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to log receipt: %w", err)
	}
	return cost, nil
}

// PurgeEnded deletes ended sessions last updated before cutoff, with their receipts
func (s *Store) PurgeEnded(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.observe(ctx, "purge_ended", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM sessions WHERE status = ? AND updated_at < ?`,
			StatusEnded, cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return purged, nil
}
