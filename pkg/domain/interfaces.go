package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by DocumentStore implementations. Services
// translate these into DomainError codes at their own boundary.
var (
	// ErrDocumentNotFound is returned by Get when no document has the id.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrDuplicateID is returned when an insert collides with an existing id.
	ErrDuplicateID = errors.New("document id already exists")
	// ErrPreconditionFailed aborts a batch whose update preconditions no
	// longer hold. The batch applies nothing.
	ErrPreconditionFailed = errors.New("write precondition failed")
)

// FilterOp is a query comparison operator.
type FilterOp string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual FilterOp = "=="
	// OpElemMatch matches documents whose array field contains an
	// element with all the given subfields.
	OpElemMatch FilterOp = "elem-match"
)

// Filter is one predicate of a document query.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// ElemMatch builds an array-element filter.
func ElemMatch(field string, sub map[string]any) Filter {
	return Filter{Field: field, Op: OpElemMatch, Value: sub}
}

// WriteKind selects the operation of one batch entry.
type WriteKind int

const (
	// WriteInsert creates the document; fails the batch on duplicate id.
	WriteInsert WriteKind = iota
	// WritePut creates or fully replaces the document.
	WritePut
	// WriteUpdate sets individual fields (dotted paths allowed) and may
	// carry preconditions that must match the stored document.
	WriteUpdate
	// WriteDelete removes the document if present.
	WriteDelete
)

// Write is one entry of an atomic batch.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Doc        any            // Insert/Put: the full document
	Fields     map[string]any // Update: fields to set
	// Update only. Every filter must match the stored document or the
	// whole batch aborts with ErrPreconditionFailed.
	Preconditions []Filter
}

// ChangeEvent is one document change delivered to a subscriber.
type ChangeEvent struct {
	Collection string
	ID         string
	Operation  string // "insert", "update", "replace", "delete"
}

// DocumentStore is the generic key/document persistence contract the
// engines run against. BatchWrite is all-or-nothing: either every entry
// applies or none does.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, dest any) error
	Query(ctx context.Context, collection string, filters []Filter, dest any) error
	// CountDocuments counts the documents matching the filters without
	// transferring them.
	CountDocuments(ctx context.Context, collection string, filters []Filter) (int64, error)
	BatchWrite(ctx context.Context, writes []Write) error
	// Increment atomically adds delta to a numeric field, creating the
	// document at zero when absent, and returns the new value.
	Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error)
	// Subscribe streams document changes for a collection until ctx is
	// cancelled. Used by dashboards, not by the engines.
	Subscribe(ctx context.Context, collection string) (<-chan ChangeEvent, error)
}

// CacheRepository defines caching operations
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// NotificationSink receives best-effort broker notifications. Delivery
// guarantees and fan-out live outside this service; a failed notify is
// logged and never fails the triggering operation.
type NotificationSink interface {
	Notify(ctx context.Context, brokerID, subject, body string) error
}
