package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/emberfall/reckoner/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on effect_executions.effect_id
const currentSchemaVersion = 1

// SQLite is the durable Store implementation.
// Uses WAL mode for concurrent read access during writes.
type SQLite struct {
	db    *sql.DB
	clock *seqClock
}

var _ Store = (*SQLite)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	// to avoid SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	clock, err := loadSeqClock(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read sequence position: %w", err)
	}

	return &SQLite{db: db, clock: clock}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds an index on effect_executions.effect_id for existing
// databases; new databases get it from schema.sql application anyway.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_executions_effect
		ON effect_executions(effect_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// loadSeqClock resumes the creation-sequence counter from the highest
// stored value across the sequenced tables.
func loadSeqClock(db *sql.DB) (*seqClock, error) {
	var max int64
	err := db.QueryRow(`
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT MAX(created_seq) AS seq FROM state_variables
			UNION ALL
			SELECT MAX(created_seq) FROM conditions
			UNION ALL
			SELECT MAX(created_seq) FROM effects
		)
	`).Scan(&max)
	if err != nil {
		return nil, err
	}
	return newSeqClockAt(max), nil
}

// --- entities ---

func (s *SQLite) Load(ctx context.Context, entityType, entityID string) (*model.EntitySnapshot, error) {
	snap := &model.EntitySnapshot{EntityType: entityType, EntityID: entityID}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data, version FROM entities
		WHERE entity_type = ? AND entity_id = ?
	`, entityType, entityID).Scan(&data, &snap.Version)
	if err == sql.ErrNoRows {
		return nil, model.NewEntityNotFound(entityType, entityID)
	}
	if err != nil {
		return nil, model.NewStoreUnavailable("load entity", err)
	}
	snap.Data = json.RawMessage(data)
	return snap, nil
}

func (s *SQLite) Save(ctx context.Context, snap *model.EntitySnapshot) error {
	version := snap.Version
	if version == 0 {
		version = 1
	}
	data := string(snap.Data)
	if data == "" {
		data = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (entity_type, entity_id, data, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id)
		DO UPDATE SET data = excluded.data, version = excluded.version
	`, snap.EntityType, snap.EntityID, data, version)
	if err != nil {
		return model.NewStoreUnavailable("save entity", err)
	}
	return nil
}

func (s *SQLite) ApplyPatch(ctx context.Context, entityType, entityID string, patch model.PatchDoc, expectedVersion int64) (*model.EntitySnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.NewStoreUnavailable("apply patch: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		data    string
		version int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT data, version FROM entities
		WHERE entity_type = ? AND entity_id = ?
	`, entityType, entityID).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, model.NewEntityNotFound(entityType, entityID)
	}
	if err != nil {
		return nil, model.NewStoreUnavailable("apply patch: load", err)
	}
	if version != expectedVersion {
		return nil, model.NewConflict("entity", entityType+"/"+entityID, expectedVersion)
	}

	patched, err := applyPatchDoc(json.RawMessage(data), patch)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE entities SET data = ?, version = version + 1
		WHERE entity_type = ? AND entity_id = ?
	`, string(patched), entityType, entityID)
	if err != nil {
		return nil, model.NewStoreUnavailable("apply patch: update", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, model.NewStoreUnavailable("apply patch: commit", err)
	}

	return &model.EntitySnapshot{
		EntityType: entityType,
		EntityID:   entityID,
		Data:       patched,
		Version:    version + 1,
	}, nil
}

// --- state variables ---

const variableColumns = `id, campaign_id, scope, scope_id, key, value, formula, version, deleted_at, created_seq`

func (s *SQLite) GetVariable(ctx context.Context, id string) (*model.StateVariable, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+variableColumns+` FROM state_variables WHERE id = ?
	`, id)
	v, err := scanVariable(row)
	if err == sql.ErrNoRows {
		return nil, model.NewEntityNotFound("state_variable", id)
	}
	if err != nil {
		return nil, model.NewStoreUnavailable("get variable", err)
	}
	return v, nil
}

func (s *SQLite) FindByScope(ctx context.Context, campaignID string, scope model.VariableScope, scopeID string) ([]*model.StateVariable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+variableColumns+` FROM state_variables
		WHERE campaign_id = ? AND scope = ? AND scope_id = ? AND deleted_at IS NULL
		ORDER BY created_seq
	`, campaignID, string(scope), scopeID)
	if err != nil {
		return nil, model.NewStoreUnavailable("find variables by scope", err)
	}
	return collectVariables(rows)
}

func (s *SQLite) ListVariables(ctx context.Context, campaignID string) ([]*model.StateVariable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+variableColumns+` FROM state_variables
		WHERE campaign_id = ? AND deleted_at IS NULL
		ORDER BY created_seq
	`, campaignID)
	if err != nil {
		return nil, model.NewStoreUnavailable("list variables", err)
	}
	return collectVariables(rows)
}

func (s *SQLite) SaveVariable(ctx context.Context, v *model.StateVariable) error {
	if v.CreatedSeq == 0 {
		v.CreatedSeq = s.clock.Next()
	}
	v.Version = 1

	value, formula, err := encodeVariableBody(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state_variables
		(id, campaign_id, scope, scope_id, key, value, formula, version, deleted_at, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, v.ID, v.CampaignID, string(v.Scope), v.ScopeID, v.Key, value, formula, v.Version, v.CreatedSeq)
	if err != nil {
		return model.NewStoreUnavailable("save variable", err)
	}
	return nil
}

func (s *SQLite) UpdateVariable(ctx context.Context, v *model.StateVariable) error {
	value, formula, err := encodeVariableBody(v)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE state_variables
		SET value = ?, formula = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, value, formula, v.ID, v.Version)
	if err != nil {
		return model.NewStoreUnavailable("update variable", err)
	}
	if err := s.checkVersioned(ctx, res, "state_variable", v.ID, v.Version); err != nil {
		return err
	}
	v.Version++
	return nil
}

func (s *SQLite) DeleteVariable(ctx context.Context, id string, expectedVersion int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE state_variables
		SET deleted_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339Nano), id, expectedVersion)
	if err != nil {
		return model.NewStoreUnavailable("delete variable", err)
	}
	return s.checkVersioned(ctx, res, "state_variable", id, expectedVersion)
}

// checkVersioned resolves a zero-row versioned update into the right
// error: conflict when the row exists at another version, not-found
// otherwise.
func (s *SQLite) checkVersioned(ctx context.Context, res sql.Result, kind, id string, expectedVersion int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return model.NewStoreUnavailable("rows affected", err)
	}
	if n > 0 {
		return nil
	}

	table := map[string]string{
		"state_variable": "state_variables",
		"condition":      "conditions",
		"effect":         "effects",
	}[kind]
	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&count)
	if err != nil {
		return model.NewStoreUnavailable("check version", err)
	}
	if count > 0 {
		return model.NewConflict(kind, id, expectedVersion)
	}
	return model.NewEntityNotFound(kind, id)
}

func encodeVariableBody(v *model.StateVariable) (value, formula sql.NullString, err error) {
	if v.IsDerived() {
		raw, err := model.EncodeNode(v.Formula)
		if err != nil {
			return value, formula, fmt.Errorf("encode formula: %w", err)
		}
		formula = sql.NullString{String: string(raw), Valid: true}
		return value, formula, nil
	}
	raw, err := model.MarshalCanonical(v.Value)
	if err != nil {
		return value, formula, fmt.Errorf("encode value: %w", err)
	}
	value = sql.NullString{String: string(raw), Valid: true}
	return value, formula, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariable(row rowScanner) (*model.StateVariable, error) {
	var (
		v              model.StateVariable
		scope          string
		value, formula sql.NullString
		deletedAt      sql.NullString
	)
	err := row.Scan(&v.ID, &v.CampaignID, &scope, &v.ScopeID, &v.Key,
		&value, &formula, &v.Version, &deletedAt, &v.CreatedSeq)
	if err != nil {
		return nil, err
	}
	v.Scope = model.VariableScope(scope)
	if value.Valid {
		if err := json.Unmarshal([]byte(value.String), &v.Value); err != nil {
			return nil, fmt.Errorf("decode value for %s: %w", v.ID, err)
		}
	}
	if formula.Valid {
		n, err := model.DecodeNode([]byte(formula.String))
		if err != nil {
			return nil, fmt.Errorf("decode formula for %s: %w", v.ID, err)
		}
		v.Formula = n
	}
	if t, ok := parseTombstone(deletedAt); ok {
		v.DeletedAt = &t
	}
	return &v, nil
}

func collectVariables(rows *sql.Rows) ([]*model.StateVariable, error) {
	defer rows.Close()
	var out []*model.StateVariable
	for rows.Next() {
		v, err := scanVariable(rows)
		if err != nil {
			return nil, model.NewStoreUnavailable("scan variable", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreUnavailable("iterate variables", err)
	}
	return out, nil
}

func parseTombstone(s sql.NullString) (time.Time, bool) {
	if !s.Valid {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// --- conditions ---

const conditionColumns = `id, campaign_id, branch_id, name, entity_type, entity_id, expression, priority, is_active, deleted_at, created_seq`

func (s *SQLite) GetCondition(ctx context.Context, id string) (*model.Condition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conditionColumns+` FROM conditions WHERE id = ?
	`, id)
	c, err := scanCondition(row)
	if err == sql.ErrNoRows {
		return nil, model.NewEntityNotFound("condition", id)
	}
	if err != nil {
		return nil, model.NewStoreUnavailable("get condition", err)
	}
	return c, nil
}

func (s *SQLite) ListConditions(ctx context.Context, campaignID, branchID string) ([]*model.Condition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conditionColumns+` FROM conditions
		WHERE campaign_id = ? AND branch_id = ? AND deleted_at IS NULL AND is_active = 1
		ORDER BY created_seq
	`, campaignID, branchID)
	if err != nil {
		return nil, model.NewStoreUnavailable("list conditions", err)
	}
	defer rows.Close()

	var out []*model.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, model.NewStoreUnavailable("scan condition", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreUnavailable("iterate conditions", err)
	}
	return out, nil
}

func (s *SQLite) SaveCondition(ctx context.Context, c *model.Condition) error {
	if c.CreatedSeq == 0 {
		c.CreatedSeq = s.clock.Next()
	}
	expr, err := model.EncodeNode(c.Expression)
	if err != nil {
		return fmt.Errorf("encode expression: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conditions
		(id, campaign_id, branch_id, name, entity_type, entity_id, expression, priority, is_active, deleted_at, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, c.ID, c.CampaignID, c.BranchID, c.Name, c.EntityType, c.EntityID,
		string(expr), c.Priority, boolInt(c.IsActive), c.CreatedSeq)
	if err != nil {
		return model.NewStoreUnavailable("save condition", err)
	}
	return nil
}

func (s *SQLite) UpdateCondition(ctx context.Context, c *model.Condition) error {
	expr, err := model.EncodeNode(c.Expression)
	if err != nil {
		return fmt.Errorf("encode expression: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE conditions
		SET name = ?, entity_type = ?, entity_id = ?, expression = ?, priority = ?, is_active = ?
		WHERE id = ? AND deleted_at IS NULL
	`, c.Name, c.EntityType, c.EntityID, string(expr), c.Priority, boolInt(c.IsActive), c.ID)
	if err != nil {
		return model.NewStoreUnavailable("update condition", err)
	}
	return requireRow(res, "condition", c.ID)
}

func (s *SQLite) DeleteCondition(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conditions SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return model.NewStoreUnavailable("delete condition", err)
	}
	return requireRow(res, "condition", id)
}

func scanCondition(row rowScanner) (*model.Condition, error) {
	var (
		c         model.Condition
		expr      string
		active    int
		deletedAt sql.NullString
	)
	err := row.Scan(&c.ID, &c.CampaignID, &c.BranchID, &c.Name, &c.EntityType,
		&c.EntityID, &expr, &c.Priority, &active, &deletedAt, &c.CreatedSeq)
	if err != nil {
		return nil, err
	}
	n, err := model.DecodeNode([]byte(expr))
	if err != nil {
		return nil, fmt.Errorf("decode expression for %s: %w", c.ID, err)
	}
	c.Expression = n
	c.IsActive = active != 0
	if t, ok := parseTombstone(deletedAt); ok {
		c.DeletedAt = &t
	}
	return &c, nil
}

// --- effects ---

const effectColumns = `id, campaign_id, branch_id, entity_type, entity_id, payload, timing, priority, is_active, deleted_at, created_seq`

func (s *SQLite) GetEffect(ctx context.Context, id string) (*model.Effect, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+effectColumns+` FROM effects WHERE id = ?
	`, id)
	e, err := scanEffect(row)
	if err == sql.ErrNoRows {
		return nil, model.NewEntityNotFound("effect", id)
	}
	if err != nil {
		return nil, model.NewStoreUnavailable("get effect", err)
	}
	return e, nil
}

func (s *SQLite) ListEffects(ctx context.Context, campaignID, branchID string) ([]*model.Effect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+effectColumns+` FROM effects
		WHERE campaign_id = ? AND branch_id = ? AND deleted_at IS NULL AND is_active = 1
		ORDER BY created_seq
	`, campaignID, branchID)
	if err != nil {
		return nil, model.NewStoreUnavailable("list effects", err)
	}
	return collectEffects(rows)
}

func (s *SQLite) FindEffects(ctx context.Context, campaignID, branchID, entityType, entityID string, timing model.Timing) ([]*model.Effect, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+effectColumns+` FROM effects
		WHERE campaign_id = ? AND branch_id = ? AND entity_type = ? AND entity_id = ?
		  AND timing = ? AND deleted_at IS NULL AND is_active = 1
		ORDER BY created_seq
	`, campaignID, branchID, entityType, entityID, string(timing))
	if err != nil {
		return nil, model.NewStoreUnavailable("find effects", err)
	}
	return collectEffects(rows)
}

func (s *SQLite) SaveEffect(ctx context.Context, e *model.Effect) error {
	if e.CreatedSeq == 0 {
		e.CreatedSeq = s.clock.Next()
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO effects
		(id, campaign_id, branch_id, entity_type, entity_id, payload, timing, priority, is_active, deleted_at, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
	`, e.ID, e.CampaignID, e.BranchID, e.EntityType, e.EntityID,
		string(payload), string(e.Timing), e.Priority, boolInt(e.IsActive), e.CreatedSeq)
	if err != nil {
		return model.NewStoreUnavailable("save effect", err)
	}
	return nil
}

func (s *SQLite) UpdateEffect(ctx context.Context, e *model.Effect) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE effects
		SET entity_type = ?, entity_id = ?, payload = ?, timing = ?, priority = ?, is_active = ?
		WHERE id = ? AND deleted_at IS NULL
	`, e.EntityType, e.EntityID, string(payload), string(e.Timing),
		e.Priority, boolInt(e.IsActive), e.ID)
	if err != nil {
		return model.NewStoreUnavailable("update effect", err)
	}
	return requireRow(res, "effect", e.ID)
}

func (s *SQLite) DeleteEffect(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE effects SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return model.NewStoreUnavailable("delete effect", err)
	}
	return requireRow(res, "effect", id)
}

func scanEffect(row rowScanner) (*model.Effect, error) {
	var (
		e         model.Effect
		payload   string
		timing    string
		active    int
		deletedAt sql.NullString
	)
	err := row.Scan(&e.ID, &e.CampaignID, &e.BranchID, &e.EntityType, &e.EntityID,
		&payload, &timing, &e.Priority, &active, &deletedAt, &e.CreatedSeq)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", e.ID, err)
	}
	e.Timing = model.Timing(timing)
	e.IsActive = active != 0
	if t, ok := parseTombstone(deletedAt); ok {
		e.DeletedAt = &t
	}
	return &e, nil
}

func collectEffects(rows *sql.Rows) ([]*model.Effect, error) {
	defer rows.Close()
	var out []*model.Effect
	for rows.Next() {
		e, err := scanEffect(rows)
		if err != nil {
			return nil, model.NewStoreUnavailable("scan effect", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreUnavailable("iterate effects", err)
	}
	return out, nil
}

// --- execution log ---

func (s *SQLite) AppendExecution(ctx context.Context, rec *model.EffectExecution) error {
	var applied sql.NullString
	if rec.Applied != nil {
		raw, err := json.Marshal(rec.Applied)
		if err != nil {
			return fmt.Errorf("encode applied patch: %w", err)
		}
		applied = sql.NullString{String: string(raw), Valid: true}
	}
	ctxJSON := string(rec.Context)
	if ctxJSON == "" {
		ctxJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO effect_executions
		(id, effect_id, entity_type, entity_id, actor, executed_at, context, applied, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.EffectID, rec.EntityType, rec.EntityID, rec.Actor,
		rec.ExecutedAt.UTC().Format(time.RFC3339Nano), ctxJSON, applied, rec.Error)
	if err != nil {
		return model.NewStoreUnavailable("append execution", err)
	}
	return nil
}

func (s *SQLite) ExecutionsForEntity(ctx context.Context, entityType, entityID string) ([]*model.EffectExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, effect_id, entity_type, entity_id, actor, executed_at, context, applied, error
		FROM effect_executions
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY executed_at, id
	`, entityType, entityID)
	if err != nil {
		return nil, model.NewStoreUnavailable("list executions", err)
	}
	defer rows.Close()

	var out []*model.EffectExecution
	for rows.Next() {
		var (
			rec        model.EffectExecution
			executedAt string
			ctxJSON    string
			applied    sql.NullString
		)
		err := rows.Scan(&rec.ID, &rec.EffectID, &rec.EntityType, &rec.EntityID,
			&rec.Actor, &executedAt, &ctxJSON, &applied, &rec.Error)
		if err != nil {
			return nil, model.NewStoreUnavailable("scan execution", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, executedAt); err == nil {
			rec.ExecutedAt = t
		}
		rec.Context = json.RawMessage(ctxJSON)
		if applied.Valid {
			if err := json.Unmarshal([]byte(applied.String), &rec.Applied); err != nil {
				return nil, fmt.Errorf("decode applied patch for %s: %w", rec.ID, err)
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreUnavailable("iterate executions", err)
	}
	return out, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return model.NewStoreUnavailable("rows affected", err)
	}
	if n == 0 {
		return model.NewEntityNotFound(kind, id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
