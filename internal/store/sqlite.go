package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/speccyhq/speccy/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// marshalJSON renders v as a JSON string for a TEXT column, with a fallback
// default when v is empty.
func marshalJSON(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil || v == nil {
		return fallback
	}
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(data), &out)
	return out
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		sess.ID = newULID()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	var brief, spec sql.NullString
	if sess.LatestBrief != nil {
		brief = sql.NullString{String: marshalJSON(sess.LatestBrief, "{}"), Valid: true}
	}
	if sess.TeamSpec != nil {
		spec = sql.NullString{String: marshalJSON(sess.TeamSpec, "{}"), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, tenant_id, phase, status, version, turn_budget, turns_used, channel, channel_meta, model, latest_brief, team_spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.TenantID, sess.Phase, sess.Status, sess.Version,
		sess.TurnBudget, sess.TurnsUsed, sess.Channel, marshalJSON(sess.ChannelMeta, "{}"),
		sess.Model, brief, spec, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

const sessionColumns = `id, project_id, tenant_id, phase, status, version, turn_budget, turns_used, channel, channel_meta, model, latest_brief, team_spec, created_at, updated_at`

func (s *SQLiteStore) scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	sess := &models.Session{}
	var meta string
	var brief, spec sql.NullString
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.TenantID, &sess.Phase, &sess.Status,
		&sess.Version, &sess.TurnBudget, &sess.TurnsUsed, &sess.Channel, &meta,
		&sess.Model, &brief, &spec, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(meta), &sess.ChannelMeta)
	if brief.Valid {
		sess.LatestBrief = &models.ClientBrief{}
		_ = json.Unmarshal([]byte(brief.String), sess.LatestBrief)
	}
	if spec.Valid {
		sess.TeamSpec = &models.TeamSpec{}
		_ = json.Unmarshal([]byte(spec.String), sess.TeamSpec)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetActiveSessionByProject(ctx context.Context, projectID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE project_id = ? AND status = ? ORDER BY version DESC LIMIT 1`,
		projectID, models.SessionStatusActive)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active session for project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionListFilter) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	var brief, spec sql.NullString
	if sess.LatestBrief != nil {
		brief = sql.NullString{String: marshalJSON(sess.LatestBrief, "{}"), Valid: true}
	}
	if sess.TeamSpec != nil {
		spec = sql.NullString{String: marshalJSON(sess.TeamSpec, "{}"), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET phase = ?, status = ?, turn_budget = ?, turns_used = ?, channel = ?, channel_meta = ?, model = ?, latest_brief = ?, team_spec = ?, updated_at = ?
		WHERE id = ?`,
		sess.Phase, sess.Status, sess.TurnBudget, sess.TurnsUsed, sess.Channel,
		marshalJSON(sess.ChannelMeta, "{}"), sess.Model, brief, spec, sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) NextSessionVersion(ctx context.Context, projectID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM sessions WHERE project_id = ?`, projectID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next session version: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// --- Messages ---

func (s *SQLiteStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = newULID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var toolInput sql.NullString
	if len(m.ToolInput) > 0 {
		toolInput = sql.NullString{String: string(m.ToolInput), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, turn_number, content, tool_name, tool_input, image_media_type, image_data, input_tokens, output_tokens, model_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.TurnNumber, m.Content, m.ToolName, toolInput,
		m.ImageMediaType, m.ImageData, m.InputTokens, m.OutputTokens, m.ModelID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, turn_number, content, tool_name, tool_input, image_media_type, image_data, input_tokens, output_tokens, model_id, created_at
		FROM messages WHERE session_id = ? ORDER BY turn_number, created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var toolInput sql.NullString
		err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.TurnNumber, &m.Content,
			&m.ToolName, &toolInput, &m.ImageMediaType, &m.ImageData,
			&m.InputTokens, &m.OutputTokens, &m.ModelID, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolInput.Valid {
			m.ToolInput = json.RawMessage(toolInput.String)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// --- Handoffs ---

func (s *SQLiteStore) CreateHandoff(ctx context.Context, h *models.Handoff) error {
	if h.ID == "" {
		h.ID = newULID()
	}
	h.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handoffs (id, session_id, initiator_id, initiator_name, reason, summary, suggested_questions, target_role, target_user_id, token, expires_at, accepted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.SessionID, h.InitiatorID, h.InitiatorName, h.Reason, h.Summary,
		marshalJSON(h.SuggestedQuestions, "[]"), h.TargetRole, h.TargetUserID,
		h.Token, h.ExpiresAt, h.AcceptedAt, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create handoff: %w", err)
	}
	return nil
}

const handoffColumns = `id, session_id, initiator_id, initiator_name, reason, summary, suggested_questions, target_role, target_user_id, token, expires_at, accepted_at, created_at`

func scanHandoff(row interface{ Scan(...any) error }) (*models.Handoff, error) {
	h := &models.Handoff{}
	var questions string
	err := row.Scan(&h.ID, &h.SessionID, &h.InitiatorID, &h.InitiatorName, &h.Reason,
		&h.Summary, &questions, &h.TargetRole, &h.TargetUserID, &h.Token,
		&h.ExpiresAt, &h.AcceptedAt, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	h.SuggestedQuestions = unmarshalStrings(questions)
	return h, nil
}

func (s *SQLiteStore) GetHandoff(ctx context.Context, id string) (*models.Handoff, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+handoffColumns+` FROM handoffs WHERE id = ?`, id)
	h, err := scanHandoff(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("handoff %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get handoff: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) GetHandoffByToken(ctx context.Context, token string) (*models.Handoff, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+handoffColumns+` FROM handoffs WHERE token = ?`, token)
	h, err := scanHandoff(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("handoff token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get handoff by token: %w", err)
	}
	return h, nil
}

func (s *SQLiteStore) CountPendingHandoffs(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM handoffs WHERE session_id = ? AND accepted_at IS NULL AND target_user_id = ''`,
		sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending handoffs: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) UpdateHandoff(ctx context.Context, h *models.Handoff) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE handoffs SET target_user_id = ?, accepted_at = ? WHERE id = ?`,
		h.TargetUserID, h.AcceptedAt, h.ID,
	)
	if err != nil {
		return fmt.Errorf("update handoff: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("handoff %s: %w", h.ID, ErrNotFound)
	}
	return nil
}

// --- Cards ---

func (s *SQLiteStore) CreateCards(ctx context.Context, cards []*models.Card) error {
	if len(cards) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, c := range cards {
		if c.ID == "" {
			c.ID = newULID()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cards (id, session_id, title, description, acceptance_criteria, has_ui, dependencies, status, position, chunk_index, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.SessionID, c.Title, c.Description,
			marshalJSON(c.AcceptanceCriteria, "[]"), boolToInt(c.HasUI),
			marshalJSON(c.Dependencies, "[]"), c.Status, c.Position, c.ChunkIndex,
			c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("create card: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListCards(ctx context.Context, sessionID string) ([]*models.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, title, description, acceptance_criteria, has_ui, dependencies, status, position, chunk_index, created_at, updated_at
		FROM cards WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []*models.Card
	for rows.Next() {
		c := &models.Card{}
		var criteria, deps string
		var hasUI int
		err := rows.Scan(&c.ID, &c.SessionID, &c.Title, &c.Description, &criteria,
			&hasUI, &deps, &c.Status, &c.Position, &c.ChunkIndex, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		c.AcceptanceCriteria = unmarshalStrings(criteria)
		c.Dependencies = unmarshalStrings(deps)
		c.HasUI = hasUI != 0
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *SQLiteStore) CountCards(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}
	return count, nil
}

// --- Notifications ---

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = newULID()
	}
	n.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, action, notifiable_type, notifiable_id, data, tenant_id, excluded_actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Action, n.NotifiableType, n.NotifiableID,
		marshalJSON(n.Data, "{}"), n.TenantID, n.ExcludedActorID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `SELECT id, action, notifiable_type, notifiable_id, data, tenant_id, excluded_actor_id, created_at
		FROM notifications ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var data string
		err := rows.Scan(&n.ID, &n.Action, &n.NotifiableType, &n.NotifiableID,
			&data, &n.TenantID, &n.ExcludedActorID, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		_ = json.Unmarshal([]byte(data), &n.Data)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
