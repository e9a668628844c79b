package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/edufi-cli/internal/errors"
)

// ListQuery filters persisted actions. Empty fields match everything.
type ListQuery struct {
	Status     string
	IntentType string
	Limit      int
}

type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create action store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create action lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open action sqlite: %w", err)
	}
	store := &Store{db: db, lock: flock.New(lockPath)}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS actions (
			action_id TEXT PRIMARY KEY,
			intent_type TEXT NOT NULL,
			status TEXT NOT NULL,
			chain_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_actions_status_updated ON actions(status, updated_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_actions_intent_updated ON actions(intent_type, updated_at DESC);",
	}
	err = store.locked(func() error {
		for _, q := range queries {
			if _, err := db.Exec(q); err != nil {
				return fmt.Errorf("init action schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) locked(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := s.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock action store: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock action store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(action Action) error {
	if stringsTrim(action.ActionID) == "" {
		return fmt.Errorf("save action: missing action id")
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	createdUnix, _ := parseRFC3339Unix(action.CreatedAt)
	updatedUnix, _ := parseRFC3339Unix(action.UpdatedAt)
	if createdUnix == 0 {
		createdUnix = time.Now().UTC().Unix()
	}
	if updatedUnix == 0 {
		updatedUnix = time.Now().UTC().Unix()
	}

	return s.locked(func() error {
		return s.upsert(action, payload, createdUnix, updatedUnix)
	})
}

func (s *Store) upsert(action Action, payload []byte, createdUnix, updatedUnix int64) error {
	_, err := s.db.Exec(`
		INSERT INTO actions (action_id, intent_type, status, chain_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO UPDATE SET
			intent_type=excluded.intent_type,
			status=excluded.status,
			chain_id=excluded.chain_id,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, action.ActionID, action.IntentType, action.Status, action.ChainID, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (s *Store) Get(actionID string) (Action, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM actions WHERE action_id = ?", actionID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Action{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("action not found: %s", actionID))
		}
		return Action{}, fmt.Errorf("read action: %w", err)
	}
	var action Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return Action{}, fmt.Errorf("decode action payload: %w", err)
	}
	return action, nil
}

func (s *Store) List(q ListQuery) ([]Action, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	query := "SELECT payload FROM actions"
	var (
		clauses []string
		args    []any
	)
	if stringsTrim(q.Status) != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, stringsTrim(q.Status))
	}
	if stringsTrim(q.IntentType) != "" {
		clauses = append(clauses, "intent_type = ?")
		args = append(args, stringsTrim(q.IntentType))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := make([]Action, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		var action Action
		if err := json.Unmarshal(payload, &action); err != nil {
			return nil, fmt.Errorf("decode action row: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return actions, nil
}

func stringsTrim(v string) string {
	return strings.TrimSpace(v)
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
