// Package store implements the DocumentStore abstraction the core depends on
// (spec §4.11, §6) and an in-process implementation suitable for tests and
// single-node deployments. Grounded on the teacher's mutex-guarded map cache
// in engine/internal/resources/manager.go, generalized from an LRU page
// cache into an unbounded, collection-keyed document map with compare-and-set
// semantics instead of eviction.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nexusmedia/contentops/internal/nexuserr"
)

// Document is an opaque, JSON-shaped record. Implementations round-trip it
// through encoding/json so callers can store any Go struct.
type Document = json.RawMessage

// Filter is a single equality constraint used by Query.
type Filter struct {
	Field string
	Value any
}

// DocumentStore is the minimal persistence seam the core depends on
// (spec §6). Collections used are listed in spec §4.11.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, bool, error)
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, patch func(current Document) (any, error)) error
	Query(ctx context.Context, collection string, filters []Filter) ([]Document, error)
	CompareAndSet(ctx context.Context, collection, id string, expected, newDoc any) (bool, error)
}

type record struct {
	doc  Document
	flat map[string]any // decoded view used for Query filter matching
}

// Memory is an in-process DocumentStore backed by collection-keyed maps,
// guarded by a single mutex (spec §5: "document-level last-writer-wins
// within a single-writer-per-id discipline is sufficient").
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]record
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]record)}
}

func encode(v any) (Document, map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		// Not an object (e.g. a scalar or array); Query won't match on fields.
		flat = nil
	}
	return raw, flat, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return nil, false, nil
	}
	rec, ok := coll[id]
	if !ok {
		return nil, false, nil
	}
	cp := append(Document(nil), rec.doc...)
	return cp, true, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, flat, err := encode(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCollection(collection)[id] = record{doc: raw, flat: flat}
	return nil
}

func (m *Memory) ensureCollection(collection string) map[string]record {
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]record)
		m.collections[collection] = coll
	}
	return coll
}

// Update applies patch to the current document (nil, not-found if absent)
// and writes back whatever patch returns. The whole read-modify-write is
// performed under the store's single lock, so concurrent Updates on the same
// id serialize rather than race.
func (m *Memory) Update(ctx context.Context, collection, id string, patch func(current Document) (any, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.ensureCollection(collection)
	var current Document
	if rec, ok := coll[id]; ok {
		current = rec.doc
	}
	next, err := patch(current)
	if err != nil {
		return err
	}
	raw, flat, err := encode(next)
	if err != nil {
		return err
	}
	coll[id] = record{doc: raw, flat: flat}
	return nil
}

// Query returns every document in collection matching all filters (AND
// semantics). Filters compare against the document's top-level JSON fields.
func (m *Memory) Query(ctx context.Context, collection string, filters []Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.collections[collection]
	out := make([]Document, 0, len(coll))
	for _, rec := range coll {
		if matches(rec.flat, filters) {
			out = append(out, append(Document(nil), rec.doc...))
		}
	}
	return out, nil
}

func matches(flat map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := flat[f.Field]
		if !ok {
			return false
		}
		if fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

// CompareAndSet atomically replaces the document at id with newDoc only if
// its current value deep-equals expected (by JSON encoding). Used by the
// buffer subsystem's used:false->true transition and by budget/quota
// read-modify-write (spec §5, §4.8, §4.10).
func (m *Memory) CompareAndSet(ctx context.Context, collection, id string, expected, newDoc any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	expectedRaw, _, err := encode(expected)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.ensureCollection(collection)
	current, exists := coll[id]
	if !exists {
		return false, nexuserr.New("NEXUS_STORE_NOT_FOUND", nexuserr.SeverityRecoverable, fmt.Sprintf("%s/%s not found", collection, id))
	}
	if string(current.doc) != string(expectedRaw) {
		return false, nil
	}
	raw, flat, err := encode(newDoc)
	if err != nil {
		return false, err
	}
	coll[id] = record{doc: raw, flat: flat}
	return true, nil
}

// Collection path builders (spec §4.11): pure functions, no hidden state.

func PipelineStateID(pipelineID string) (collection, id string)    { return "pipelines-state", pipelineID }
func PipelineArtifactsID(pipelineID string) (collection, id string) { return "pipelines-artifacts", pipelineID }
func PipelineCostsID(pipelineID string) (collection, id string)    { return "pipelines-costs", pipelineID }
func PipelineQualityID(pipelineID string) (collection, id string)  { return "pipelines-quality", pipelineID }
func BufferVideoID(id string) (collection, docID string)          { return "buffer-videos", id }
func IncidentID(id string) (collection, docID string)             { return "incidents", id }
func ReviewQueueID(id string) (collection, docID string)          { return "review-queue", id }
func BudgetCurrentID() (collection, id string)                    { return "budget", "current" }
func YouTubeQuotaID(date string) (collection, id string)          { return "youtube-quota", date }
