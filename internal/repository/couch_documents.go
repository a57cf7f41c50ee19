package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
)

// couchDocumentService implements DocumentService on CouchDB. Documents are
// keyed "collection:id" and carry a "collection" field so ListCollection can
// select on it.
type couchDocumentService struct {
	client *kivik.Client
	dbName string
}

func NewCouchDocumentService(client *kivik.Client, dbName string) DocumentService {
	return &couchDocumentService{
		client: client,
		dbName: dbName,
	}
}

const (
	fieldCollection = "collection"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
)

func (s *couchDocumentService) ListCollection(ctx context.Context, name string) ([]Document, error) {
	db := s.client.DB(s.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			fieldCollection: name,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, &RemoteError{Op: "list " + name, Err: err}
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw map[string]interface{}
		if err := rows.ScanDoc(&raw); err != nil {
			continue
		}
		docs = append(docs, docFromRaw(name, raw))
	}

	return docs, nil
}

func (s *couchDocumentService) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	db := s.client.DB(s.dbName)

	row := db.Get(ctx, docKey(collection, id))

	var raw map[string]interface{}
	if err := row.ScanDoc(&raw); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, &RemoteError{Op: "get " + collection, Err: err}
	}

	doc := docFromRaw(collection, raw)
	return &doc, nil
}

func (s *couchDocumentService) CreateDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	db := s.client.DB(s.dbName)

	id := uuid.New().String()
	now := time.Now().UTC()

	doc := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		doc[k] = v
	}
	doc[fieldCollection] = collection
	doc[fieldCreatedAt] = now
	doc[fieldUpdatedAt] = now

	if _, err := db.Put(ctx, docKey(collection, id), doc); err != nil {
		return "", &RemoteError{Op: "create " + collection, Err: err}
	}

	return id, nil
}

func (s *couchDocumentService) SetDocument(ctx context.Context, collection, id string, fields map[string]interface{}, merge bool) error {
	db := s.client.DB(s.dbName)
	docID := docKey(collection, id)

	var existing map[string]interface{}
	row := db.Get(ctx, docID)
	err := row.ScanDoc(&existing)
	notFound := err != nil && kivik.HTTPStatus(err) == http.StatusNotFound
	if err != nil && !notFound {
		return &RemoteError{Op: "set " + collection, Err: err}
	}
	if notFound && merge {
		return &RemoteError{Op: "set " + collection, Err: fmt.Errorf("document %s not found", docID)}
	}

	now := time.Now().UTC()

	var doc map[string]interface{}
	if merge {
		doc = existing
		for k, v := range fields {
			doc[k] = v
		}
	} else {
		doc = make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			doc[k] = v
		}
		if existing != nil {
			doc["_rev"] = existing["_rev"]
			doc[fieldCreatedAt] = existing[fieldCreatedAt]
		} else {
			doc[fieldCreatedAt] = now
		}
	}
	doc[fieldCollection] = collection
	doc[fieldUpdatedAt] = now

	if _, err := db.Put(ctx, docID, doc); err != nil {
		return &RemoteError{Op: "set " + collection, Err: err}
	}

	return nil
}

func (s *couchDocumentService) DeleteDocument(ctx context.Context, collection, id string) error {
	db := s.client.DB(s.dbName)
	docID := docKey(collection, id)

	var existing map[string]interface{}
	row := db.Get(ctx, docID)
	if err := row.ScanDoc(&existing); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil
		}
		return &RemoteError{Op: "delete " + collection, Err: err}
	}

	rev, _ := existing["_rev"].(string)
	if _, err := db.Delete(ctx, docID, rev); err != nil {
		return &RemoteError{Op: "delete " + collection, Err: err}
	}

	return nil
}

func docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s", collection, id)
}

func docFromRaw(collection string, raw map[string]interface{}) Document {
	doc := Document{Fields: raw}

	if docID, ok := raw["_id"].(string); ok {
		if rest, found := strings.CutPrefix(docID, collection+":"); found {
			doc.ID = rest
		} else {
			doc.ID = docID
		}
	}
	doc.CreatedAt = parseDocTime(raw[fieldCreatedAt])
	doc.UpdatedAt = parseDocTime(raw[fieldUpdatedAt])

	delete(raw, "_id")
	delete(raw, "_rev")
	delete(raw, fieldCollection)
	delete(raw, fieldCreatedAt)
	delete(raw, fieldUpdatedAt)

	return doc
}

func parseDocTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
