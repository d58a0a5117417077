// Package remote declares the collaborator contracts the engine consumes.
// Pooling, retries and throttle recovery are the collaborator's concern;
// the engine only issues paged reads and single-record mutations.
package remote

import (
	"context"

	"github.com/google/uuid"
	"github.com/veldt-labs/sqlbridge/types"
)

// Page is one page of rows returned by a QueryExecutor
type Page struct {
	Rows         []*types.QueryRow
	PagingCookie string
	HasMore      bool
	TotalCount   *int64
}

// QueryExecutor executes a native query and returns one page of rows.
// pagingCookie is the continuation token from the prior page, empty for the
// first page. pageSize <= 0 lets the executor choose.
type QueryExecutor interface {
	Execute(ctx context.Context, fetchXML string, pagingCookie string, pageSize int) (*Page, error)
}

// MutationExecutor applies single-record mutations against the remote store
type MutationExecutor interface {
	Create(ctx context.Context, entityName string, values map[string]types.QueryValue) (uuid.UUID, error)
	Update(ctx context.Context, entityName string, id uuid.UUID, values map[string]types.QueryValue) error
	Delete(ctx context.Context, entityName string, id uuid.UUID) error
}

// AttributeKind classifies an attribute as reported by the schema provider
type AttributeKind string

const (
	AttributeString   AttributeKind = "string"
	AttributeNumber   AttributeKind = "number"
	AttributeBool     AttributeKind = "boolean"
	AttributeDateTime AttributeKind = "datetime"
	AttributeGuid     AttributeKind = "guid"
	// AttributeLookup is a foreign-key attribute with a derived display name
	AttributeLookup AttributeKind = "lookup"
)

// MetadataProvider supplies attribute information consumed during planning.
// Implementations may be nil or return ok=false for unknown attributes;
// planning degrades to treating such columns as plain string attributes.
type MetadataProvider interface {
	AttributeKind(entityName, attributeName string) (AttributeKind, bool)
}

// ProgressReporter receives purely observational progress callbacks
type ProgressReporter interface {
	ReportProgress(current, total int64, message string)
	ReportPhase(name, detail string)
}
