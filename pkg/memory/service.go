// Package memory is the retrieval engine: it owns the MemoryItem
// lifecycle across the metadata store and the vector store, and
// implements the composite-score context retrieval algorithm
// (embed-on-write, rank-and-inject on read, with a lazy self-healing
// pass for rows whose vectors went missing).
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abraxas-365/personal-ai-core/pkg/ai/llm"
	"github.com/abraxas-365/personal-ai-core/pkg/ai/vstore"
	"github.com/abraxas-365/personal-ai-core/pkg/errx"
	"github.com/abraxas-365/personal-ai-core/pkg/eventx"
	"github.com/abraxas-365/personal-ai-core/pkg/kernel"
	"github.com/abraxas-365/personal-ai-core/pkg/logx"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/metastore"
	"github.com/abraxas-365/personal-ai-core/pkg/memory/model"
)

// Service is the memory subsystem's entry point: every write, ranked
// retrieval, and filtered-read operation goes through it.
type Service struct {
	store  metastore.Store
	vec    *vstore.Client
	router *llm.Router
	bus    *eventx.Bus
	cfg    Config
}

// New builds a Service over the given metadata store, vector store client,
// and LLM router. bus may be nil, disabling event publication.
func New(store metastore.Store, vec *vstore.Client, router *llm.Router, bus *eventx.Bus, cfg Config) *Service {
	return &Service{store: store, vec: vec, router: router, bus: bus, cfg: cfg}
}

func (s *Service) publish(eventType string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, payload)
}

func isNotFound(err error) bool {
	var ce *errx.Error
	if !errx.As(err, &ce) {
		return false
	}
	return ce.Code == metastore.ErrNotFound.Code
}

// StoreMemory inserts the metadata row, then best-effort
// embed and index it. Embedding/indexing failure never fails the call — the
// metadata row is authoritative and the vector side self-heals later.
func (s *Service) StoreMemory(ctx context.Context, content string, category model.Category, sourceType model.SourceType, sourceID string, importance int, metadata map[string]any) (*model.MemoryItem, error) {
	if !category.Valid() {
		return nil, invalidCategory(string(category))
	}
	if importance == 0 {
		importance = model.DefaultImportance
	}
	if !model.ValidImportance(importance) {
		return nil, invalidImportance(importance)
	}

	item := &model.MemoryItem{
		ID:         kernel.NewID(),
		Content:    content,
		Category:   category,
		SourceType: sourceType,
		SourceID:   sourceID,
		Importance: importance,
		CreatedAt:  time.Now(),
		Metadata:   metadata,
	}
	if err := s.store.CreateMemoryItem(ctx, item); err != nil {
		return nil, err
	}

	s.indexMemoryItem(ctx, item)

	s.publish(eventx.EventMemoryStored, map[string]any{
		"id": item.ID.String(), "category": string(item.Category),
	})
	return item, nil
}

// indexMemoryItem embeds and upserts item's vector, recording the crosswalk
// in an embedding record either way. Errors are logged, not returned:
// callers of StoreMemory must not fail on this best-effort step.
func (s *Service) indexMemoryItem(ctx context.Context, item *model.MemoryItem) {
	rec := &model.VectorEmbeddingRecord{
		ID:             kernel.NewID(),
		SourceType:     model.EmbeddingSourceMemoryItem,
		SourceID:       item.ID.String(),
		EmbeddingModel: s.cfg.EmbeddingModel,
		Indexed:        false,
		CreatedAt:      time.Now(),
	}

	emb, err := s.router.Embed(ctx, item.Content)
	if err != nil {
		logx.WithError(err).WithField("memory_id", item.ID.String()).Warn("memory: embedding failed, vector entry pending self-heal")
		if upErr := s.store.UpsertEmbeddingRecord(ctx, rec); upErr != nil {
			logx.WithError(upErr).Warn("memory: failed to record pending embedding")
		}
		return
	}

	vec := vstore.Vector{
		ID:     item.ID.String(),
		Values: emb.Vector,
		Metadata: map[string]any{
			"source_type": string(item.SourceType),
			"source_id":   item.SourceID,
			"category":    string(item.Category),
		},
	}
	if convID, ok := item.Metadata["conversation_id"]; ok {
		vec.Metadata["conversation_id"] = convID
	}

	if err := s.vec.Upsert(ctx, []vstore.Vector{vec}, vstore.WithNamespace(s.cfg.Namespace)); err != nil {
		logx.WithError(err).WithField("memory_id", item.ID.String()).Warn("memory: vector upsert failed, pending self-heal")
	} else {
		rec.Indexed = true
	}
	if err := s.store.UpsertEmbeddingRecord(ctx, rec); err != nil {
		logx.WithError(err).Warn("memory: failed to record embedding status")
	}
}

// StoreMemoryBatch stores each item in order, preserving index
// correspondence between the input slice and the returned ids.
func (s *Service) StoreMemoryBatch(ctx context.Context, items []BatchItem) ([]kernel.ID, error) {
	ids := make([]kernel.ID, len(items))
	for i, it := range items {
		stored, err := s.StoreMemory(ctx, it.Content, it.Category, it.SourceType, it.SourceID, it.Importance, it.Metadata)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		ids[i] = stored.ID
	}
	return ids, nil
}

// BatchItem is one entry of a StoreMemoryBatch call.
type BatchItem struct {
	Content    string
	Category   model.Category
	SourceType model.SourceType
	SourceID   string
	Importance int
	Metadata   map[string]any
}

// RetrievedItem pairs a MemoryItem with the score it was ranked by.
type RetrievedItem struct {
	Item       *model.MemoryItem
	Score      float64
	Similarity float64
}

// RetrievalResult is retrieve_context's return value: items and
// formatted_context are in one-to-one order correspondence.
type RetrievalResult struct {
	Items            []RetrievedItem
	FormattedContext string
}

// RetrieveContext runs the ranking algorithm: embed the query,
// over-fetch K candidates by vector similarity, score each by a weighted sum
// of similarity, recency decay, and normalized importance, then return the
// top limit ranked results plus a formatted text block.
func (s *Service) RetrieveContext(ctx context.Context, query string, limit int, categories []model.Category, filters map[string]any, conversationID string) (*RetrievalResult, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	k := limit * s.cfg.SearchMultiplier
	if s.cfg.MaxSearchK > 0 && k > s.cfg.MaxSearchK {
		k = s.cfg.MaxSearchK
	}

	s.selfHealUnindexed(ctx)

	emb, err := s.router.Embed(ctx, query)
	if err != nil {
		logx.WithError(err).WithField("query", query).Warn("memory: retrieve_context embedding failed, degrading to empty result")
		s.publish(eventx.EventMemoryDegraded, map[string]any{
			"query": query, "reason": "embedding_failed", "error": err.Error(),
		})
		return &RetrievalResult{Items: nil, FormattedContext: ""}, nil
	}

	filter := vstore.Filter{}
	if len(categories) == 1 {
		filter.Must = append(filter.Must, vstore.Condition{Field: "category", Operator: vstore.OpEqual, Value: string(categories[0])})
	} else if len(categories) > 1 {
		values := make([]any, len(categories))
		for i, c := range categories {
			values[i] = string(c)
		}
		filter.Must = append(filter.Must, vstore.Condition{Field: "category", Operator: vstore.OpIn, Value: values})
	}
	for field, val := range filters {
		filter.Must = append(filter.Must, vstore.Condition{Field: field, Operator: vstore.OpEqual, Value: val})
	}
	if conversationID != "" {
		filter.Must = append(filter.Must, vstore.Condition{Field: "conversation_id", Operator: vstore.OpEqual, Value: conversationID})
	}

	qr, err := s.vec.Query(ctx, emb.Vector, vstore.WithTopK(k), vstore.WithFilter(&filter), vstore.WithNamespace(s.cfg.Namespace), vstore.WithIncludeMetadata(true))
	if err != nil {
		logx.WithError(err).WithField("query", query).Warn("memory: retrieve_context vector store query failed, degrading to empty result")
		s.publish(eventx.EventMemoryDegraded, map[string]any{
			"query": query, "reason": "vector_store_query_failed", "error": err.Error(),
		})
		return &RetrievalResult{Items: nil, FormattedContext: ""}, nil
	}

	now := time.Now()
	tau := s.cfg.RecencyHalfLife.Seconds()
	if tau <= 0 {
		tau = (14 * 24 * time.Hour).Seconds()
	}

	candidates := make([]RetrievedItem, 0, len(qr.Matches))
	for _, m := range qr.Matches {
		id := kernel.ParseID(m.ID)
		item, err := s.store.GetMemoryItem(ctx, id)
		if err != nil {
			if isNotFound(err) {
				// Orphaned vector entry: metadata row is gone, delete it.
				if delErr := s.vec.Delete(ctx, []string{m.ID}, vstore.WithNamespace(s.cfg.Namespace)); delErr != nil {
					logx.WithError(delErr).WithField("vector_id", m.ID).Warn("memory: failed to delete orphaned vector entry")
				}
				continue
			}
			logx.WithError(err).WithField("vector_id", m.ID).Warn("memory: failed to load candidate memory item")
			continue
		}

		age := now.Sub(item.CreatedAt).Seconds()
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-age / tau)
		normImportance := float64(item.Importance-1) / float64(model.MaxImportance-model.MinImportance)
		similarity := float64(m.Score)
		score := s.cfg.SimilarityWeight*similarity + s.cfg.RecencyWeight*recency + s.cfg.ImportanceWeight*normImportance

		candidates = append(candidates, RetrievedItem{Item: item, Score: score, Similarity: similarity})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.After(b.Item.CreatedAt)
		}
		return a.Item.ID.String() < b.Item.ID.String()
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := &RetrievalResult{
		Items:            candidates,
		FormattedContext: formatContext(candidates),
	}

	s.publish(eventx.EventMemoryRetrieved, map[string]any{
		"query": query, "count": len(candidates),
	})
	return result, nil
}

// formatContext renders one bullet per item, in the exact order of items, so
// the two stay in one-to-one correspondence.
func formatContext(items []RetrievedItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it.Item.Content)
		var annotations []string
		if it.Item.SourceType != "" {
			annotations = append(annotations, fmt.Sprintf("source_type=%s", it.Item.SourceType))
		}
		if it.Item.SourceID != "" {
			annotations = append(annotations, fmt.Sprintf("source_id=%s", it.Item.SourceID))
		}
		annotations = append(annotations, fmt.Sprintf("timestamp=%s", it.Item.CreatedAt.Format(time.RFC3339)))
		if len(annotations) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(annotations, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// selfHealUnindexed is the other half of the reconciliation: metadata rows whose
// vector entry was never successfully written are retried, best-effort, up
// to SelfHealBatchSize per pass.
func (s *Service) selfHealUnindexed(ctx context.Context) {
	recs, err := s.store.ListUnindexedEmbeddingRecords(ctx, s.cfg.SelfHealBatchSize)
	if err != nil || len(recs) == 0 {
		return
	}
	repaired := 0
	for _, rec := range recs {
		if rec.SourceType != model.EmbeddingSourceMemoryItem {
			continue // document/web chunk re-indexing is owned by their ingestion pipelines
		}
		item, err := s.store.GetMemoryItem(ctx, kernel.ParseID(rec.SourceID))
		if err != nil {
			if isNotFound(err) {
				s.store.DeleteEmbeddingRecord(ctx, rec.SourceType, rec.SourceID)
			}
			continue
		}
		s.indexMemoryItem(ctx, item)
		if healed, err := s.store.GetEmbeddingRecord(ctx, rec.SourceType, rec.SourceID); err == nil && healed.Indexed {
			repaired++
		}
	}
	if repaired > 0 {
		s.publish(eventx.EventSelfHealRepaired, map[string]any{"repaired": repaired})
	}
}

// SearchMemory returns ranked MemoryItems for a query without the formatted
// context block, per the core API's search_memory entry point.
func (s *Service) SearchMemory(ctx context.Context, query string, limit int, categories []model.Category, filters map[string]any) ([]*model.MemoryItem, error) {
	result, err := s.RetrieveContext(ctx, query, limit, categories, filters, "")
	if err != nil {
		return nil, err
	}
	items := make([]*model.MemoryItem, len(result.Items))
	for i, r := range result.Items {
		items[i] = r.Item
	}
	return items, nil
}

// GetMemory fetches a single MemoryItem by id.
func (s *Service) GetMemory(ctx context.Context, id kernel.ID) (*model.MemoryItem, error) {
	return s.store.GetMemoryItem(ctx, id)
}

// UpdateMemory persists changes to an existing MemoryItem and re-indexes it,
// since content (and therefore its embedding) may have changed.
func (s *Service) UpdateMemory(ctx context.Context, item *model.MemoryItem) error {
	if !item.Category.Valid() {
		return invalidCategory(string(item.Category))
	}
	if !model.ValidImportance(item.Importance) {
		return invalidImportance(item.Importance)
	}
	if err := s.store.UpdateMemoryItem(ctx, item); err != nil {
		return err
	}
	s.indexMemoryItem(ctx, item)
	return nil
}

// DeleteMemory removes a MemoryItem from both stores. The vector entry
// and the crosswalk record go first: if either delete fails, the call
// errors with the metadata row still intact, so the caller can retry and
// no vector entry is ever left behind without a matching row. Only once
// both derived entries are gone is the authoritative metadata row
// deleted.
func (s *Service) DeleteMemory(ctx context.Context, id kernel.ID) error {
	if _, err := s.store.GetMemoryItem(ctx, id); err != nil {
		return err
	}
	if err := s.vec.Delete(ctx, []string{id.String()}, vstore.WithNamespace(s.cfg.Namespace)); err != nil {
		logx.WithError(err).WithField("memory_id", id.String()).Error("memory: failed to delete vector entry, aborting delete")
		return err
	}
	if err := s.store.DeleteEmbeddingRecord(ctx, model.EmbeddingSourceMemoryItem, id.String()); err != nil {
		return err
	}
	if err := s.store.DeleteMemoryItem(ctx, id); err != nil {
		return err
	}
	s.publish(eventx.EventMemoryDeleted, map[string]any{"id": id.String()})
	return nil
}

// Thin filtered reads over the metadata store, no vector-store
// involvement.

func (s *Service) GetByCategory(ctx context.Context, category model.Category, limit, offset int) ([]*model.MemoryItem, error) {
	return s.store.ListMemoryItems(ctx, metastore.MemoryItemFilter{Category: category, Limit: limit, Offset: offset})
}

func (s *Service) GetBySource(ctx context.Context, sourceType model.SourceType, sourceID string, limit, offset int) ([]*model.MemoryItem, error) {
	return s.store.ListMemoryItems(ctx, metastore.MemoryItemFilter{SourceType: sourceType, SourceID: sourceID, Limit: limit, Offset: offset})
}

func (s *Service) GetByImportance(ctx context.Context, min int, limit, offset int) ([]*model.MemoryItem, error) {
	return s.store.ListMemoryItems(ctx, metastore.MemoryItemFilter{MinImportance: min, Limit: limit, Offset: offset})
}

func (s *Service) GetRecentMemories(ctx context.Context, limit int) ([]*model.MemoryItem, error) {
	return s.store.ListMemoryItems(ctx, metastore.MemoryItemFilter{Limit: limit})
}

// MarkAsImportant sets a MemoryItem's importance to level. Automatic
// system updates never lower importance; this is an explicit user action
// and may raise or lower it.
func (s *Service) MarkAsImportant(ctx context.Context, id kernel.ID, level int) error {
	if !model.ValidImportance(level) {
		return invalidImportance(level)
	}
	item, err := s.store.GetMemoryItem(ctx, id)
	if err != nil {
		return err
	}
	item.Importance = level
	return s.store.UpdateMemoryItem(ctx, item)
}

func (s *Service) CountMemories(ctx context.Context) (int, error) {
	return s.store.CountMemoryItems(ctx, metastore.MemoryItemFilter{})
}

func (s *Service) CountByCategory(ctx context.Context) (map[model.Category]int, error) {
	return s.store.CountMemoryItemsByCategory(ctx)
}
