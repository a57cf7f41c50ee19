package repository

import (
	"context"
	"time"
)

// Document is one remote document. CreatedAt/UpdatedAt are assigned by the
// remote store on write and kept out of Fields.
type Document struct {
	ID        string
	Fields    map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentService is the capability interface the sync engine consumes for
// the hosted document database. Implementations own their timeout behavior; a
// timed-out call is indistinguishable from a failed one to the caller.
type DocumentService interface {
	ListCollection(ctx context.Context, name string) ([]Document, error)

	// GetDocument returns nil (not an error) when the document is absent.
	GetDocument(ctx context.Context, collection, id string) (*Document, error)

	// CreateDocument stores the fields under a server-assigned id and
	// returns that id.
	CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error)

	// SetDocument writes fields under an existing id. With merge, the given
	// fields overlay the stored document; without, they replace it.
	SetDocument(ctx context.Context, collection, id string, fields map[string]interface{}, merge bool) error

	// DeleteDocument removes the document; deleting an absent document is
	// not an error.
	DeleteDocument(ctx context.Context, collection, id string) error
}
