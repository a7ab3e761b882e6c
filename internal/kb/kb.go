// Package kb is the knowledge base: a SQLite-backed library of saved
// personas and comparisons that outlives individual pipeline runs. Saved
// items keep their hypothesis labels so downstream consumers can tell
// synthesized hypotheses from observed facts.
package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/personaforge/personaforge/internal/model"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.personaforge/kb.db"

// Hypothesis labels are fixed strings for cross-application exchange.
const (
	PersonaLabel    = "仮説ペルソナ"
	ComparisonLabel = "仮説比較"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = fmt.Errorf("knowledge base item not found")

// Repository defines the knowledge base storage interface.
type Repository interface {
	SavePersona(ctx context.Context, persona model.Persona, title string) (*model.SavedPersona, error)
	GetPersona(ctx context.Context, id string) (*model.SavedPersona, error)
	ListPersonas(ctx context.Context) ([]*model.SavedPersona, error)
	UpdatePersona(ctx context.Context, saved *model.SavedPersona) error
	DeletePersona(ctx context.Context, id string) error
	SearchPersonas(ctx context.Context, query string) ([]*model.SavedPersona, error)

	SaveComparison(ctx context.Context, cmp model.Comparison, personas []model.Persona, title string) (*model.SavedComparison, error)
	GetComparison(ctx context.Context, id string) (*model.SavedComparison, error)
	ListComparisons(ctx context.Context) ([]*model.SavedComparison, error)
	DeleteComparison(ctx context.Context, id string) error

	SetActivePersona(ctx context.Context, id string) error
	ActivePersona(ctx context.Context) (string, error)

	Close() error
}

// SQLiteRepository implements Repository on a single SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

// NewRepository opens (and if needed creates) the knowledge base.
// Pass ":memory:" for in-memory databases (testing).
func NewRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	dbPath = expandPath(dbPath)

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	r := &SQLiteRepository{db: db, dbPath: dbPath}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS kb_items (
			id         TEXT PRIMARY KEY,
			item_type  TEXT NOT NULL,
			title      TEXT NOT NULL,
			summary    TEXT NOT NULL DEFAULT '',
			owner      TEXT NOT NULL DEFAULT '',
			shared     INTEGER NOT NULL DEFAULT 0,
			payload    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kb_items_type ON kb_items(item_type);
		CREATE TABLE IF NOT EXISTS kb_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// SavePersona converts a persona to its saved form and stores it. An empty
// title is auto-generated from the item count and the summary head.
func (r *SQLiteRepository) SavePersona(ctx context.Context, persona model.Persona, title string) (*model.SavedPersona, error) {
	id := "persona-" + uuid.NewString()

	if title == "" {
		n, err := r.countItems(ctx, "")
		if err != nil {
			return nil, err
		}
		title = fmt.Sprintf("KB-Persona-%03d_%s", n+1, truncateRunes(persona.OneLineSummary, 20))
	}

	now := time.Now()
	saved := &model.SavedPersona{
		PersonaID:       id,
		Title:           title,
		HypothesisLabel: PersonaLabel,
		Summary:         persona.OneLineSummary,
		Story:           persona.BackgroundStory,
		ProxyStructure:  persona.ProxyStructure,
		JTBD:            persona.JobToBeDone,
		CriteriaTop5:    persona.DecisionCriteriaTop5,
		Journey:         persona.TypicalJourney,
		Pitfalls:        persona.CommonMisconceptions,
		Tactics:         persona.EffectiveStrategies,
		Evidence:        persona.Evidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.insert(ctx, id, "persona", saved.Title, saved.Summary, saved.Owner, saved.Shared, saved, now); err != nil {
		return nil, err
	}
	return saved, nil
}

// GetPersona fetches one saved persona by id.
func (r *SQLiteRepository) GetPersona(ctx context.Context, id string) (*model.SavedPersona, error) {
	return scanPersona(r.db.QueryRowContext(ctx,
		`SELECT payload FROM kb_items WHERE id = ? AND item_type = 'persona'`, id))
}

// ListPersonas returns all saved personas, newest first.
func (r *SQLiteRepository) ListPersonas(ctx context.Context) ([]*model.SavedPersona, error) {
	return r.queryPersonas(ctx,
		`SELECT payload FROM kb_items WHERE item_type = 'persona' ORDER BY created_at DESC, id`)
}

// SearchPersonas matches the query against title and summary.
func (r *SQLiteRepository) SearchPersonas(ctx context.Context, query string) ([]*model.SavedPersona, error) {
	like := "%" + query + "%"
	return r.queryPersonas(ctx,
		`SELECT payload FROM kb_items
		 WHERE item_type = 'persona' AND (title LIKE ? OR summary LIKE ?)
		 ORDER BY created_at DESC, id`, like, like)
}

// UpdatePersona rewrites a saved persona in place.
func (r *SQLiteRepository) UpdatePersona(ctx context.Context, saved *model.SavedPersona) error {
	saved.UpdatedAt = time.Now()
	payload, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE kb_items SET title = ?, summary = ?, owner = ?, shared = ?, payload = ?, updated_at = ?
		 WHERE id = ? AND item_type = 'persona'`,
		saved.Title, saved.Summary, saved.Owner, boolToInt(saved.Shared),
		string(payload), saved.UpdatedAt.Format(time.RFC3339Nano), saved.PersonaID)
	if err != nil {
		return fmt.Errorf("update persona: %w", err)
	}
	return requireRow(res)
}

// DeletePersona removes a saved persona.
func (r *SQLiteRepository) DeletePersona(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM kb_items WHERE id = ? AND item_type = 'persona'`, id)
	if err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	return requireRow(res)
}

// SaveComparison stores a comparison. The auto-title joins the compared
// personas' summary heads with "vs".
func (r *SQLiteRepository) SaveComparison(ctx context.Context, cmp model.Comparison, personas []model.Persona, title string) (*model.SavedComparison, error) {
	id := "comparison-" + uuid.NewString()

	if title == "" {
		n, err := r.countItems(ctx, "comparison")
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(cmp.Personas))
		for _, pid := range cmp.Personas {
			name := pid
			for _, p := range personas {
				if p.ID == pid {
					name = truncateRunes(p.OneLineSummary, 15)
					break
				}
			}
			names = append(names, name)
		}
		title = fmt.Sprintf("KB-Comparison-%03d_%s", n+1, joinVs(names))
	}

	now := time.Now()
	saved := &model.SavedComparison{
		ComparisonID:    id,
		Title:           title,
		HypothesisLabel: ComparisonLabel,
		Personas:        cmp.Personas,
		Comparison:      cmp,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.insert(ctx, id, "comparison", saved.Title, "", saved.Owner, saved.Shared, saved, now); err != nil {
		return nil, err
	}
	return saved, nil
}

// GetComparison fetches one saved comparison by id.
func (r *SQLiteRepository) GetComparison(ctx context.Context, id string) (*model.SavedComparison, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT payload FROM kb_items WHERE id = ? AND item_type = 'comparison'`, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get comparison: %w", err)
	}
	var saved model.SavedComparison
	if err := json.Unmarshal([]byte(payload), &saved); err != nil {
		return nil, fmt.Errorf("unmarshal comparison: %w", err)
	}
	return &saved, nil
}

// ListComparisons returns all saved comparisons, newest first.
func (r *SQLiteRepository) ListComparisons(ctx context.Context) ([]*model.SavedComparison, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM kb_items WHERE item_type = 'comparison' ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list comparisons: %w", err)
	}
	defer rows.Close()

	var out []*model.SavedComparison
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var saved model.SavedComparison
		if err := json.Unmarshal([]byte(payload), &saved); err != nil {
			return nil, fmt.Errorf("unmarshal comparison: %w", err)
		}
		out = append(out, &saved)
	}
	return out, rows.Err()
}

// DeleteComparison removes a saved comparison.
func (r *SQLiteRepository) DeleteComparison(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM kb_items WHERE id = ? AND item_type = 'comparison'`, id)
	if err != nil {
		return fmt.Errorf("delete comparison: %w", err)
	}
	return requireRow(res)
}

// SetActivePersona marks one saved persona as the working selection for
// downstream tools. The persona must exist.
func (r *SQLiteRepository) SetActivePersona(ctx context.Context, id string) error {
	if _, err := r.GetPersona(ctx, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kb_meta (key, value) VALUES ('active_persona', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, id)
	if err != nil {
		return fmt.Errorf("set active persona: %w", err)
	}
	return nil
}

// ActivePersona returns the active persona id, or "" when none is set. A
// deleted persona clears the selection implicitly.
func (r *SQLiteRepository) ActivePersona(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kb_meta WHERE key = 'active_persona'`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("active persona: %w", err)
	}
	if _, err := r.GetPersona(ctx, id); err == ErrNotFound {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLiteRepository) insert(ctx context.Context, id, itemType, title, summary, owner string, shared bool, payload interface{}, now time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", itemType, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO kb_items (id, item_type, title, summary, owner, shared, payload, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, itemType, title, summary, owner, boolToInt(shared),
		string(data), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert %s: %w", itemType, err)
	}
	return nil
}

// countItems counts items, all of them when itemType is empty.
func (r *SQLiteRepository) countItems(ctx context.Context, itemType string) (int, error) {
	var n int
	var err error
	if itemType == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_items`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kb_items WHERE item_type = ?`, itemType).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryPersonas(ctx context.Context, query string, args ...interface{}) ([]*model.SavedPersona, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query personas: %w", err)
	}
	defer rows.Close()

	var out []*model.SavedPersona
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var saved model.SavedPersona
		if err := json.Unmarshal([]byte(payload), &saved); err != nil {
			return nil, fmt.Errorf("unmarshal persona: %w", err)
		}
		out = append(out, &saved)
	}
	return out, rows.Err()
}

func scanPersona(row *sql.Row) (*model.SavedPersona, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get persona: %w", err)
	}
	var saved model.SavedPersona
	if err := json.Unmarshal([]byte(payload), &saved); err != nil {
		return nil, fmt.Errorf("unmarshal persona: %w", err)
	}
	return &saved, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinVs(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " vs "
		}
		out += n
	}
	return out
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
