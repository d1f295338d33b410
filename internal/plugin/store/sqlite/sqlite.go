// Package sqlite implements the MemoryStore interface on embedded SQLite,
// for single-node development and test deployments that don't want a
// Postgres dependency. It mirrors internal/plugin/store/postgres's
// GORM-based CRUD, swapping tsvector/pgvector for FTS5 and sqlite-vec.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/chirino/temporal-memory-store/internal/clock"
	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrymigrate "github.com/chirino/temporal-memory-store/internal/registry/migrate"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

func init() {
	sqlitevec.Auto()

	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(sqlite.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite database: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			// A single writer connection avoids SQLITE_BUSY under concurrent
			// retrieval/decay load; WAL lets readers proceed alongside it.
			sqlDB.SetMaxOpenConns(1)
			sqlDB.SetMaxIdleConns(1)
			for _, pragma := range []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA busy_timeout=5000",
				"PRAGMA foreign_keys=ON",
			} {
				if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
					return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
				}
			}
			return &Store{db: db, dim: cfg.EmbedDimension}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &migrator{}})
}

type migrator struct{}

func (m *migrator) Name() string { return "sqlite-schema" }
func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "sqlite" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := sql.Open("sqlite3", cfg.DBURL)
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("SQLite schema migration complete")
	return nil
}

// Store implements registrystore.MemoryStore on SQLite + FTS5 + sqlite-vec.
type Store struct {
	db  *gorm.DB
	dim int
}

type memoryItemRow struct {
	ID              string     `gorm:"column:id;primaryKey"`
	Kind            string     `gorm:"column:kind"`
	OrganizationID  string     `gorm:"column:organization_id"`
	UserID          *string    `gorm:"column:user_id"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	ImportanceScore float64    `gorm:"column:importance_score"`
	AccessCount     int64      `gorm:"column:access_count"`
	LastAccessedAt  *time.Time `gorm:"column:last_accessed_at"`
	RehearsalCount  int64      `gorm:"column:rehearsal_count"`
	Metadata        string     `gorm:"column:metadata"`
	ContentFields   string     `gorm:"column:content_fields"`
	LexicalText     string     `gorm:"column:lexical_text"`
	HasEmbedding    bool       `gorm:"column:has_embedding"`
	LastModifiedAt  time.Time  `gorm:"column:last_modified_at"`
	LastModifiedOp  string     `gorm:"column:last_modified_op"`
}

func (memoryItemRow) TableName() string { return "memory_items" }

func lexicalText(kind model.Kind, fields map[string]any) string {
	var parts []string
	for _, f := range model.LexicalFields(kind) {
		if v, ok := fields[f]; ok {
			if s, ok := v.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func extractVector(fields map[string]any, key string) []float32 {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	case []any:
		out := make([]float32, 0, len(v))
		for _, e := range v {
			if f, ok := e.(float64); ok {
				out = append(out, float32(f))
			}
		}
		return out
	default:
		return nil
	}
}

func marshalJSON(v map[string]any) string {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalJSON(s string) map[string]any {
	out := map[string]any{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// padOrTruncate pads (or truncates) a stored embedding to the configured
// dimension before it reaches the vec0 table, since sqlite-vec requires
// every row in a given vec0 column to share one fixed width.
func padOrTruncate(v []float32, dim int) []float32 {
	if dim <= 0 || len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}

func vecLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (s *Store) Create(ctx context.Context, input model.CreateInput) (string, error) {
	id := uuid.NewString()
	createdAt := clock.FromContext(ctx).Now()
	if input.CreatedAt != nil {
		createdAt = *input.CreatedAt
	}
	importance := 0.5
	if input.ImportanceScore != nil {
		importance = *input.ImportanceScore
	}

	fields := cloneFields(input.ContentFields)
	_, vectorField := model.EmbeddingSourceField(input.Kind)
	var vec []float32
	if vectorField != "" {
		if raw := extractVector(fields, vectorField); raw != nil {
			vec = padOrTruncate(raw, s.dim)
			delete(fields, vectorField)
		}
	}

	row := memoryItemRow{
		ID:              id,
		Kind:            string(input.Kind),
		OrganizationID:  input.OrganizationID,
		UserID:          input.UserID,
		CreatedAt:       createdAt,
		ImportanceScore: importance,
		Metadata:        marshalJSON(input.Metadata),
		ContentFields:   marshalJSON(fields),
		LexicalText:     lexicalText(input.Kind, fields),
		HasEmbedding:    vec != nil,
		LastModifiedAt:  createdAt,
		LastModifiedOp:  "create",
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if err := upsertLexicalIndex(tx, id, row.LexicalText); err != nil {
			return err
		}
		if vec != nil {
			if err := upsertVectorIndex(tx, id, vec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create %s: %w", input.Kind, err)
	}
	return id, nil
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func upsertLexicalIndex(tx *gorm.DB, id, lexicalText string) error {
	if err := tx.Exec("DELETE FROM memory_items_fts WHERE id = ?", id).Error; err != nil {
		return err
	}
	if lexicalText == "" {
		return nil
	}
	return tx.Exec("INSERT INTO memory_items_fts (id, lexical_text) VALUES (?, ?)", id, lexicalText).Error
}

func upsertVectorIndex(tx *gorm.DB, id string, vec []float32) error {
	if err := tx.Exec("DELETE FROM memory_items_vec WHERE item_id = ?", id).Error; err != nil {
		return err
	}
	return tx.Exec("INSERT INTO memory_items_vec (item_id, embedding) VALUES (?, ?)", id, vecLiteral(vec)).Error
}

func (s *Store) Update(ctx context.Context, input model.UpdateInput) error {
	var existing memoryItemRow
	q := s.db.WithContext(ctx).Where("id = ? AND kind = ? AND organization_id = ?", input.ID, input.Kind, input.OrganizationID)
	q = scopeUser(q, input.UserID)
	if err := q.First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &registrystore.NotFoundError{Resource: string(input.Kind), ID: input.ID}
		}
		return err
	}

	fields := unmarshalJSON(existing.ContentFields)
	for k, v := range input.ContentFields {
		fields[k] = v
	}
	lexText := lexicalText(input.Kind, fields)

	updates := map[string]any{
		"content_fields":   marshalJSON(fields),
		"lexical_text":     lexText,
		"last_modified_at": clock.FromContext(ctx).Now(),
		"last_modified_op": "update",
	}
	if input.ImportanceScore != nil {
		updates["importance_score"] = *input.ImportanceScore
	}
	if input.Metadata != nil {
		updates["metadata"] = marshalJSON(input.Metadata)
	}

	_, vectorField := model.EmbeddingSourceField(input.Kind)
	var newVec []float32
	if vectorField != "" {
		if raw := extractVector(input.ContentFields, vectorField); raw != nil {
			newVec = padOrTruncate(raw, s.dim)
			delete(fields, vectorField)
			updates["content_fields"] = marshalJSON(fields)
			updates["has_embedding"] = true
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&memoryItemRow{}).Where("id = ? AND kind = ?", input.ID, input.Kind).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &registrystore.NotFoundError{Resource: string(input.Kind), ID: input.ID}
		}
		if err := upsertLexicalIndex(tx, input.ID, lexText); err != nil {
			return err
		}
		if newVec != nil {
			if err := upsertVectorIndex(tx, input.ID, newVec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ? AND kind = ? AND organization_id = ?", id, kind, organizationID)
		q = scopeUser(q, userID)
		result := q.Delete(&memoryItemRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &registrystore.NotFoundError{Resource: string(kind), ID: id}
		}
		if err := tx.Exec("DELETE FROM memory_items_fts WHERE id = ?", id).Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM memory_items_vec WHERE item_id = ?", id).Error
	})
}

func scopeUser(q *gorm.DB, userID *string) *gorm.DB {
	if userID != nil {
		return q.Where("user_id = ?", *userID)
	}
	return q
}

func (s *Store) Get(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) (registrystore.Candidate, error) {
	var row memoryItemRow
	q := s.db.WithContext(ctx).Where("id = ? AND kind = ? AND organization_id = ?", id, kind, organizationID)
	q = scopeUser(q, userID)
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return registrystore.Candidate{}, &registrystore.NotFoundError{Resource: string(kind), ID: id}
		}
		return registrystore.Candidate{}, err
	}
	return row.toCandidate(), nil
}

func (r memoryItemRow) toCandidate() registrystore.Candidate {
	return registrystore.Candidate{
		ID:              r.ID,
		Kind:            model.Kind(r.Kind),
		ContentFields:   unmarshalJSON(r.ContentFields),
		CreatedAt:       r.CreatedAt,
		LastAccessedAt:  r.LastAccessedAt,
		AccessCount:     r.AccessCount,
		RehearsalCount:  r.RehearsalCount,
		ImportanceScore: r.ImportanceScore,
	}
}

func (s *Store) Retrieve(ctx context.Context, query model.Query, nLex, nVec int) ([]registrystore.Candidate, error) {
	byID := map[string]*registrystore.Candidate{}

	hasText := query.Text != nil && strings.TrimSpace(*query.Text) != ""
	hasVector := len(query.Vector) > 0

	// With neither a text nor a vector query, fall back to the most recent
	// items by created_at instead of returning nothing.
	if !hasText && !hasVector {
		rows, err := s.recentSearch(ctx, query, nLex)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			c := row.toCandidate()
			byID[c.ID] = &c
		}
		out := make([]registrystore.Candidate, 0, len(byID))
		for _, c := range byID {
			out = append(out, *c)
		}
		return out, nil
	}

	if hasText {
		rows, err := s.lexicalSearch(ctx, query, nLex)
		if err != nil {
			return nil, &registrystore.BackendUnavailableError{Component: "lexical index", Cause: err}
		}
		for _, row := range rows {
			score := row.score
			c := row.row.toCandidate()
			c.RawLexicalScore = &score
			byID[c.ID] = &c
		}
	}

	if len(query.Vector) > 0 {
		rows, err := s.vectorSearch(ctx, query, nVec)
		if err != nil {
			return nil, &registrystore.BackendUnavailableError{Component: "vector index", Cause: err}
		}
		for _, row := range rows {
			sim := row.similarity
			if existing, ok := byID[row.row.ID]; ok {
				existing.CosineSimilarity = &sim
				continue
			}
			c := row.row.toCandidate()
			c.CosineSimilarity = &sim
			byID[c.ID] = &c
		}
	}

	out := make([]registrystore.Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	return out, nil
}

type scoredRow struct {
	row   memoryItemRow
	score float64
}

// lexicalSearch joins the FTS5 shadow table back onto memory_items. FTS5's
// bm25() returns negative scores (more negative is a better match), so it is
// negated here to give the store's callers a positive "higher is better"
// BM25 score, consistent with the postgres store's ts_rank.
func (s *Store) lexicalSearch(ctx context.Context, query model.Query, limit int) ([]scoredRow, error) {
	kindFilter, args := kindsClause(query.Kinds)
	sqlStr := `
		SELECT m.*, -bm25(memory_items_fts) AS rank
		FROM memory_items_fts f
		JOIN memory_items m ON m.id = f.id
		WHERE f.lexical_text MATCH ?
		  AND m.organization_id = ?` + userClause(query.UserID) + kindFilter + `
		ORDER BY rank DESC
		LIMIT ?`
	queryArgs := []any{ftsQuery(*query.Text), query.OrganizationID}
	if query.UserID != nil {
		queryArgs = append(queryArgs, *query.UserID)
	}
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, limit)

	type rowWithRank struct {
		memoryItemRow
		Rank float64 `gorm:"column:rank"`
	}
	var rows []rowWithRank
	if err := s.db.WithContext(ctx).Raw(sqlStr, queryArgs...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]scoredRow, len(rows))
	for i, r := range rows {
		out[i] = scoredRow{row: r.memoryItemRow, score: r.Rank}
	}
	return out, nil
}

// ftsQuery turns free-form input into an FTS5 OR-of-prefixes query so stray
// punctuation in the caller's text never produces an FTS5 syntax error.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if r == '"' || r == '*' {
				return -1
			}
			return r
		}, f)
		if cleaned != "" {
			terms = append(terms, `"`+cleaned+`"*`)
		}
	}
	if len(terms) == 0 {
		return `""`
	}
	return strings.Join(terms, " OR ")
}

type vectorRow struct {
	row        memoryItemRow
	similarity float64
}

func (s *Store) vectorSearch(ctx context.Context, query model.Query, limit int) ([]vectorRow, error) {
	kindFilter, args := kindsClause(query.Kinds)
	sqlStr := `
		SELECT m.*, (1 - v.distance) AS similarity
		FROM memory_items_vec v
		JOIN memory_items m ON m.id = v.item_id
		WHERE v.embedding MATCH ? AND k = ?
		  AND m.organization_id = ?` + userClause(query.UserID) + kindFilter + `
		ORDER BY v.distance ASC`
	queryArgs := []any{vecLiteral(padOrTruncate(query.Vector, s.dim)), limit, query.OrganizationID}
	if query.UserID != nil {
		queryArgs = append(queryArgs, *query.UserID)
	}
	queryArgs = append(queryArgs, args...)

	type rowWithSim struct {
		memoryItemRow
		Similarity float64 `gorm:"column:similarity"`
	}
	var rows []rowWithSim
	if err := s.db.WithContext(ctx).Raw(sqlStr, queryArgs...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]vectorRow, len(rows))
	for i, r := range rows {
		out[i] = vectorRow{row: r.memoryItemRow, similarity: r.Similarity}
	}
	return out, nil
}

// recentSearch returns the limit most recent items by created_at, scoped to
// the query's tenant and kinds. Used when a query has neither text nor a
// vector to search with.
func (s *Store) recentSearch(ctx context.Context, query model.Query, limit int) ([]memoryItemRow, error) {
	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).
		Where("organization_id = ?", query.OrganizationID)
	q = scopeUser(q, query.UserID)
	if len(query.Kinds) > 0 {
		strs := make([]string, len(query.Kinds))
		for i, k := range query.Kinds {
			strs[i] = string(k)
		}
		q = q.Where("kind IN ?", strs)
	}

	var rows []memoryItemRow
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, &registrystore.BackendUnavailableError{Component: "recent-items query", Cause: err}
	}
	return rows, nil
}

func userClause(userID *string) string {
	if userID != nil {
		return " AND m.user_id = ?"
	}
	return ""
}

func kindsClause(kinds []model.Kind) (string, []any) {
	if len(kinds) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(kinds))
	args := make([]any, len(kinds))
	for i, k := range kinds {
		placeholders[i] = "?"
		args[i] = string(k)
	}
	return " AND m.kind IN (" + strings.Join(placeholders, ",") + ")", args
}

func (s *Store) BumpAccess(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string, update registrystore.RehearsalUpdate) error {
	now := clock.FromContext(ctx).Now()
	updates := map[string]any{
		"access_count":     gorm.Expr("access_count + 1"),
		"last_accessed_at": now,
		"last_modified_at": now,
		"last_modified_op": "accessed",
	}
	if update.NewImportanceScore != nil {
		updates["importance_score"] = *update.NewImportanceScore
		updates["last_modified_op"] = "rehearsed"
	}
	if update.NewRehearsalCount != nil {
		updates["rehearsal_count"] = *update.NewRehearsalCount
	}

	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).
		Where("id = ? AND kind = ? AND organization_id = ?", id, kind, organizationID)
	q = scopeUser(q, userID)
	result := q.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: string(kind), ID: id}
	}
	return nil
}

// ScanForDecay pages oldest-first within a kind, optionally narrowed to a
// tenant. The cursor encodes (created_at, id), with id breaking ties, so
// pagination stays stable under concurrent deletes and shared timestamps.
func (s *Store) ScanForDecay(ctx context.Context, scope registrystore.DecayScope, kind model.Kind, cursor string, batchSize int) ([]registrystore.DecayCandidate, string, error) {
	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).Where("kind = ?", kind)
	if scope.OrganizationID != nil {
		q = q.Where("organization_id = ?", *scope.OrganizationID)
	}
	if scope.UserID != nil {
		q = q.Where("user_id = ?", *scope.UserID)
	}
	if cursor != "" {
		if after, id, ok := parseDecayCursor(cursor); ok {
			q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", after, after, id)
		}
	}

	var rows []memoryItemRow
	if err := q.Order("created_at ASC, id ASC").Limit(batchSize).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	out := make([]registrystore.DecayCandidate, len(rows))
	for i, r := range rows {
		out[i] = registrystore.DecayCandidate{
			ID:              r.ID,
			CreatedAt:       r.CreatedAt,
			LastAccessedAt:  r.LastAccessedAt,
			AccessCount:     r.AccessCount,
			ImportanceScore: r.ImportanceScore,
		}
	}
	next := ""
	if len(rows) == batchSize {
		last := rows[len(rows)-1]
		next = decayCursor(last.CreatedAt, last.ID)
	}
	return out, next, nil
}

func decayCursor(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
}

func parseDecayCursor(cursor string) (time.Time, string, bool) {
	sep := strings.LastIndex(cursor, "|")
	if sep < 0 {
		return time.Time{}, "", false
	}
	t, err := time.Parse(time.RFC3339Nano, cursor[:sep])
	if err != nil {
		return time.Time{}, "", false
	}
	return t, cursor[sep+1:], true
}

func (s *Store) DeleteBatch(ctx context.Context, kind model.Kind, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("kind = ? AND id IN ?", kind, ids).Delete(&memoryItemRow{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if err := tx.Exec("DELETE FROM memory_items_fts WHERE id IN ?", ids).Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM memory_items_vec WHERE item_id IN ?", ids).Error
	})
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) AdminCounts(ctx context.Context, organizationID *string) (map[model.Kind]int64, error) {
	type countRow struct {
		Kind  string
		Count int64
	}
	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).Select("kind, count(*) as count").Group("kind")
	if organizationID != nil {
		q = q.Where("organization_id = ?", *organizationID)
	}
	var rows []countRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.Kind]int64, len(rows))
	for _, r := range rows {
		out[model.Kind(r.Kind)] = r.Count
	}
	return out, nil
}

func (s *Store) AdminDistribution(ctx context.Context, organizationID *string, kind model.Kind, field model.DistributionField, bucketEdges []float64) ([]int64, error) {
	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).Where("kind = ?", kind)
	if organizationID != nil {
		q = q.Where("organization_id = ?", *organizationID)
	}

	var values []float64
	switch field {
	case model.DistributionImportance:
		if err := q.Pluck("importance_score", &values).Error; err != nil {
			return nil, err
		}
	case model.DistributionAccessCount:
		if err := q.Pluck("access_count", &values).Error; err != nil {
			return nil, err
		}
	case model.DistributionAgeDays:
		var createdAts []time.Time
		if err := q.Pluck("created_at", &createdAts).Error; err != nil {
			return nil, err
		}
		now := clock.FromContext(ctx).Now()
		values = make([]float64, len(createdAts))
		for i, t := range createdAts {
			values[i] = now.Sub(t).Hours() / 24
		}
	default:
		return nil, &registrystore.ValidationError{Field: "field", Message: "unknown distribution field " + string(field)}
	}

	buckets := make([]int64, len(bucketEdges)+1)
	for _, v := range values {
		idx := len(bucketEdges)
		for i, edge := range bucketEdges {
			if v < edge {
				idx = i
				break
			}
		}
		buckets[idx]++
	}
	return buckets, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrystore.MemoryStore = (*Store)(nil)
