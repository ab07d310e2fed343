package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: an official
	// document came into existence, was replaced, or was withdrawn.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events that indicate a broken guarantee and
	// need a human to look at them.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as downloads.
	CategoryOperations EventCategory = "operations"
)

// EventKind names what happened to a document.
type EventKind string

const (
	EventDocumentGenerated   EventKind = "document_generated"
	EventDocumentDownloaded  EventKind = "document_downloaded"
	EventDocumentRegenerated EventKind = "document_regenerated"
	EventDocumentReissued    EventKind = "document_reissued"
	EventDocumentDeleted     EventKind = "document_deleted"

	// EventDuplicateActiveDetected is raised when the store rejects a second
	// ACTIVE record for a scope, meaning the scope lock did not hold.
	EventDuplicateActiveDetected EventKind = "duplicate_active_detected"
)

var eventCategories = map[EventKind]EventCategory{
	EventDocumentGenerated: CategoryCompliance,
	EventDocumentReissued:  CategoryCompliance,
	EventDocumentDeleted:   CategoryCompliance,

	EventDuplicateActiveDetected: CategorySecurity,

	EventDocumentDownloaded:  CategoryOperations,
	EventDocumentRegenerated: CategoryOperations,
}

// Category returns the EventCategory for this kind.
// Unknown kinds default to CategoryOperations.
func (k EventKind) Category() EventCategory {
	if cat, ok := eventCategories[k]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted after a document operation commits. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category   EventCategory
	Kind       EventKind
	Timestamp  time.Time
	DocumentID string
	CaseFileID string
	// ActorID is the person who triggered the operation.
	ActorID   string
	RequestID string
	Fields    map[string]string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by stores that can list what they persisted.
type Reader interface {
	ListByDocument(ctx context.Context, documentID string) ([]Event, error)
}
