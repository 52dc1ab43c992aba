package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/joselopes-lab/brokerdesk/pkg/domain"
)

// MemoryStore is an in-memory domain.DocumentStore used by tests. It
// round-trips documents through bson so struct tags behave exactly as
// they do against Mongo, and its BatchWrite holds a single lock for the
// whole batch, giving the same all-or-nothing semantics.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]bson.M
	subscribers []chan domain.ChangeEvent
	writeErr    error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]bson.M)}
}

// SetWriteError makes every subsequent BatchWrite and Increment fail
// with err until called again with nil. For storage-failure tests.
func (s *MemoryStore) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	return decodeInto(doc, dest)
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters []domain.Filter, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := bson.A{}
	for _, doc := range s.collections[collection] {
		if matchesAll(doc, filters) {
			matched = append(matched, doc)
		}
	}

	raw, err := bson.Marshal(bson.M{"docs": matched})
	if err != nil {
		return err
	}
	var wrapper struct {
		Docs bson.RawValue `bson:"docs"`
	}
	if err := bson.Unmarshal(raw, &wrapper); err != nil {
		return err
	}
	return wrapper.Docs.Unmarshal(dest)
}

func (s *MemoryStore) CountDocuments(ctx context.Context, collection string, filters []domain.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, doc := range s.collections[collection] {
		if matchesAll(doc, filters) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) BatchWrite(ctx context.Context, writes []domain.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}

	// Validate the whole batch against current state before mutating
	// anything, so a late failure cannot leave a partial apply.
	for _, w := range writes {
		switch w.Kind {
		case domain.WriteInsert:
			if _, exists := s.collections[w.Collection][w.ID]; exists {
				return domain.ErrDuplicateID
			}
		case domain.WriteUpdate:
			doc, exists := s.collections[w.Collection][w.ID]
			if !exists || !matchesAll(doc, w.Preconditions) {
				return domain.ErrPreconditionFailed
			}
		}
	}

	events := make([]domain.ChangeEvent, 0, len(writes))
	for _, w := range writes {
		if s.collections[w.Collection] == nil {
			s.collections[w.Collection] = make(map[string]bson.M)
		}
		switch w.Kind {
		case domain.WriteInsert, domain.WritePut:
			doc, err := toDocument(w.Doc, w.ID)
			if err != nil {
				return err
			}
			s.collections[w.Collection][w.ID] = doc
			events = append(events, domain.ChangeEvent{Collection: w.Collection, ID: w.ID, Operation: "insert"})
		case domain.WriteUpdate:
			doc := s.collections[w.Collection][w.ID]
			for field, value := range w.Fields {
				setField(doc, field, normalize(value))
			}
			events = append(events, domain.ChangeEvent{Collection: w.Collection, ID: w.ID, Operation: "update"})
		case domain.WriteDelete:
			delete(s.collections[w.Collection], w.ID)
			events = append(events, domain.ChangeEvent{Collection: w.Collection, ID: w.ID, Operation: "delete"})
		default:
			return fmt.Errorf("unknown write kind %d", w.Kind)
		}
	}

	s.publish(events)
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return 0, s.writeErr
	}

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]bson.M)
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		doc = bson.M{"_id": id}
		s.collections[collection][id] = doc
	}

	var current int64
	switch v := doc[field].(type) {
	case int64:
		current = v
	case int32:
		current = int64(v)
	case float64:
		current = int64(v)
	}
	current += delta
	doc[field] = current

	s.publish([]domain.ChangeEvent{{Collection: collection, ID: id, Operation: "update"}})
	return current, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (<-chan domain.ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.ChangeEvent, 64)
	s.subscribers = append(s.subscribers, ch)
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}

// publish fans events out to subscribers, dropping when a buffer is
// full. Callers hold the store lock.
func (s *MemoryStore) publish(events []domain.ChangeEvent) {
	for _, ev := range events {
		for _, ch := range s.subscribers {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func toDocument(doc any, id string) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["_id"] = id
	return m, nil
}

func decodeInto(doc bson.M, dest any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, dest)
}

// normalize round-trips a value through bson so stored field values
// compare like they would after a Mongo read (e.g. time precision).
func normalize(value any) any {
	raw, err := bson.Marshal(bson.M{"v": value})
	if err != nil {
		return value
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return value
	}
	return m["v"]
}

func matchesAll(doc bson.M, filters []domain.Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc bson.M, f domain.Filter) bool {
	value := getField(doc, f.Field)
	switch f.Op {
	case domain.OpElemMatch:
		arr, ok := value.(bson.A)
		if !ok {
			return false
		}
		sub, ok := f.Value.(map[string]any)
		if !ok {
			return false
		}
		for _, elem := range arr {
			m, ok := elem.(bson.M)
			if !ok {
				continue
			}
			all := true
			for k, v := range sub {
				if fmt.Sprint(m[k]) != fmt.Sprint(v) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(value) == fmt.Sprint(normalize(f.Value))
	}
}

func getField(doc bson.M, path string) any {
	parts := strings.Split(path, ".")
	var current any = doc
	for _, p := range parts {
		m, ok := current.(bson.M)
		if !ok {
			return nil
		}
		current = m[p]
	}
	return current
}

func setField(doc bson.M, path string, value any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p].(bson.M)
		if !ok {
			next = bson.M{}
			current[p] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
