// Package postgres implements the MemoryStore interface on PostgreSQL, using
// GORM for CRUD, native tsvector/ts_rank for lexical search, and pgvector
// (pgvector.NewVector + raw `<=>` queries) for cosine similarity search.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chirino/temporal-memory-store/internal/clock"
	"github.com/chirino/temporal-memory-store/internal/config"
	"github.com/chirino/temporal-memory-store/internal/model"
	registrymigrate "github.com/chirino/temporal-memory-store/internal/registry/migrate"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			return &Store{db: db, cfg: cfg}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &migrator{}})
}

type migrator struct{}

func (m *migrator) Name() string { return "postgres-schema" }
func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart || cfg.DatastoreType != "postgres" {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// Store implements registrystore.MemoryStore using GORM + pgvector.
type Store struct {
	db  *gorm.DB
	cfg *config.Config
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
	Metadata        []byte     `gorm:"column:metadata"`
	ContentFields   []byte     `gorm:"column:content_fields"`
	LexicalText     string     `gorm:"column:lexical_text"`
	Embedding       *pgvec.Vector `gorm:"column:embedding"`
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

// padOrTruncate pads (or truncates) a stored or queried embedding to the
// configured dimension before it reaches the fixed-width vector column.
func padOrTruncate(v []float32, dim int) []float32 {
	if dim <= 0 || len(v) == dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}

func marshalJSON(v map[string]any) []byte {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func unmarshalJSON(b []byte) map[string]any {
	out := map[string]any{}
	if len(b) == 0 {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

// Create inserts a new memory item. The caller is responsible for computing
// any embedding ahead of time and passing it under the kind's embedding
// field in input.ContentFields; it is stripped from the stored content
// payload and persisted in the dedicated vector column instead.
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
	var vec *pgvec.Vector
	if vectorField != "" {
		if raw := extractVector(fields, vectorField); raw != nil {
			v := pgvec.NewVector(padOrTruncate(raw, s.cfg.EmbedDimension))
			vec = &v
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
		Embedding:       vec,
		LastModifiedAt:  createdAt,
		LastModifiedOp:  "create",
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("create %s: %w", input.Kind, classifyError(err))
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

// Update applies a partial update. A conflicting concurrent delete surfaces
// as a NotFoundError.
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

	updates := map[string]any{
		"content_fields":   marshalJSON(fields),
		"lexical_text":     lexicalText(input.Kind, fields),
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
	if vectorField != "" {
		if raw := extractVector(input.ContentFields, vectorField); raw != nil {
			vec := pgvec.NewVector(padOrTruncate(raw, s.cfg.EmbedDimension))
			updates["embedding"] = &vec
			delete(fields, vectorField)
			updates["content_fields"] = marshalJSON(fields)
		}
	}

	result := s.db.WithContext(ctx).Model(&memoryItemRow{}).
		Where("id = ? AND kind = ?", input.ID, input.Kind).
		Updates(updates)
	if result.Error != nil {
		return classifyError(result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: string(input.Kind), ID: input.ID}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, organizationID string, userID *string, kind model.Kind, id string) error {
	q := s.db.WithContext(ctx).Where("id = ? AND kind = ? AND organization_id = ?", id, kind, organizationID)
	q = scopeUser(q, userID)
	result := q.Delete(&memoryItemRow{})
	if result.Error != nil {
		return classifyError(result.Error)
	}
	if result.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: string(kind), ID: id}
	}
	return nil
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

// Retrieve gathers up to nLex lexical candidates and nVec vector candidates
// (deduplicated by id) scoped to the query's tenant and kinds.
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

func (s *Store) lexicalSearch(ctx context.Context, query model.Query, limit int) ([]scoredRow, error) {
	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).
		Select("*, ts_rank(lexical_tsv, replace(plainto_tsquery('english', ?)::text, '&', '|')::tsquery) AS rank", *query.Text).
		Where("organization_id = ?", query.OrganizationID).
		Where("lexical_tsv @@ replace(plainto_tsquery('english', ?)::text, '&', '|')::tsquery", *query.Text)
	q = scopeUser(q, query.UserID)
	q = scopeKinds(q, query.Kinds)

	type rowWithRank struct {
		memoryItemRow
		Rank float64 `gorm:"column:rank"`
	}
	var rows []rowWithRank
	if err := q.Order("rank DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]scoredRow, len(rows))
	for i, r := range rows {
		out[i] = scoredRow{row: r.memoryItemRow, score: r.Rank}
	}
	return out, nil
}

type vectorRow struct {
	row        memoryItemRow
	similarity float64
}

func (s *Store) vectorSearch(ctx context.Context, query model.Query, limit int) ([]vectorRow, error) {
	vec := pgvec.NewVector(padOrTruncate(query.Vector, s.cfg.EmbedDimension))
	q := s.db.WithContext(ctx).Model(&memoryItemRow{}).
		Select("*, 1 - (embedding <=> ?) AS similarity", vec).
		Where("organization_id = ? AND embedding IS NOT NULL", query.OrganizationID)
	q = scopeUser(q, query.UserID)
	q = scopeKinds(q, query.Kinds)

	type rowWithSim struct {
		memoryItemRow
		Similarity float64 `gorm:"column:similarity"`
	}
	var rows []rowWithSim
	if err := q.Order(gorm.Expr("embedding <=> ?", vec)).Limit(limit).Find(&rows).Error; err != nil {
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
	q = scopeKinds(q, query.Kinds)

	var rows []memoryItemRow
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, &registrystore.BackendUnavailableError{Component: "recent-items query", Cause: err}
	}
	return rows, nil
}

func scopeKinds(q *gorm.DB, kinds []model.Kind) *gorm.DB {
	if len(kinds) == 0 {
		return q
	}
	strs := make([]string, len(kinds))
	for i, k := range kinds {
		strs[i] = string(k)
	}
	return q.Where("kind IN ?", strs)
}

// BumpAccess atomically increments access_count/last_accessed_at and, when
// a rehearsal effect is supplied, applies it in the same statement: a single
// UPDATE so a concurrent bump on the same row can never be silently lost to
// a read-modify-write race.
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
		return classifyError(result.Error)
	}
	return nil
}

// classifyError maps low-level postgres failures onto the registry's typed
// errors: serialization/deadlock failures become ConflictError, which the
// retrieval pipeline retries once, and connection-class failures become
// BackendUnavailableError. Anything else passes through unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "40001" || pgErr.Code == "40P01":
		return &registrystore.ConflictError{Message: pgErr.Message, Code: pgErr.Code}
	case strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "53300" || pgErr.Code == "57P03":
		return &registrystore.BackendUnavailableError{Component: "postgres", Cause: err}
	}
	return err
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
	result := s.db.WithContext(ctx).Where("kind = ? AND id IN ?", kind, ids).Delete(&memoryItemRow{})
	if result.Error != nil {
		return 0, classifyError(result.Error)
	}
	return int(result.RowsAffected), nil
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

	return histogram(values, bucketEdges), nil
}

func histogram(values []float64, edges []float64) []int64 {
	buckets := make([]int64, len(edges)+1)
	for _, v := range values {
		idx := len(edges)
		for i, edge := range edges {
			if v < edge {
				idx = i
				break
			}
		}
		buckets[idx]++
	}
	return buckets
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
