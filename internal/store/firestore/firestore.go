// Package firestore mirrors aggregates to Cloud Firestore through the REST
// client. Each household key maps to one document whose payload field holds
// the JSON-encoded aggregate; saves replace the document, so the mirror is
// last-write-wins by design.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	firestore "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"tirelire/internal/core"
	"tirelire/internal/store"
)

const payloadField = "payload"

type Store struct {
	svc        *firestore.Service
	project    string
	database   string
	collection string
}

var _ store.Store = (*Store)(nil)

// NewFromEnv builds a Firestore mirror from environment variables.
// Required: FIRESTORE_PROJECT_ID. Optional: FIRESTORE_DATABASE (default
// "(default)"), FIRESTORE_COLLECTION (default "tirelire"),
// FIRESTORE_CREDENTIALS_FILE (falls back to application default
// credentials).
func NewFromEnv(ctx context.Context) (*Store, error) {
	project := strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID"))
	if project == "" {
		return nil, errors.New("missing FIRESTORE_PROJECT_ID")
	}
	database := strings.TrimSpace(os.Getenv("FIRESTORE_DATABASE"))
	if database == "" {
		database = "(default)"
	}
	collection := strings.TrimSpace(os.Getenv("FIRESTORE_COLLECTION"))
	if collection == "" {
		collection = "tirelire"
	}

	var opts []option.ClientOption
	if f := strings.TrimSpace(os.Getenv("FIRESTORE_CREDENTIALS_FILE")); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
	}

	svc, err := firestore.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore service: %w", err)
	}
	return &Store{svc: svc, project: project, database: database, collection: collection}, nil
}

func (s *Store) docName(key string) string {
	return fmt.Sprintf("projects/%s/databases/%s/documents/%s/%s",
		s.project, s.database, s.collection, key)
}

func (s *Store) Load(ctx context.Context, householdKey string) (core.AppData, error) {
	payload, err := s.getPayload(ctx, householdKey)
	if err != nil {
		return core.AppData{}, err
	}
	var data core.AppData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return core.AppData{}, fmt.Errorf("decode household %s: %w", householdKey, err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, householdKey string, data core.AppData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode household %s: %w", householdKey, err)
	}
	return s.putPayload(ctx, householdKey, string(payload), data.Revision)
}

func (s *Store) LoadReferences(ctx context.Context, referenceKey string) ([]core.ReferenceBudget, error) {
	payload, err := s.getPayload(ctx, referenceKey)
	if err != nil {
		return nil, err
	}
	var refs []core.ReferenceBudget
	if err := json.Unmarshal([]byte(payload), &refs); err != nil {
		return nil, fmt.Errorf("decode references %s: %w", referenceKey, err)
	}
	return refs, nil
}

func (s *Store) SaveReferences(ctx context.Context, referenceKey string, refs []core.ReferenceBudget) error {
	payload, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("encode references %s: %w", referenceKey, err)
	}
	return s.putPayload(ctx, referenceKey, string(payload), 0)
}

func (s *Store) getPayload(ctx context.Context, key string) (string, error) {
	doc, err := s.svc.Projects.Databases.Documents.Get(s.docName(key)).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("get document %s: %w", key, err)
	}
	field, ok := doc.Fields[payloadField]
	if !ok {
		return "", fmt.Errorf("document %s has no %s field", key, payloadField)
	}
	return field.StringValue, nil
}

func (s *Store) putPayload(ctx context.Context, key, payload string, revision int64) error {
	doc := &firestore.Document{
		Fields: map[string]firestore.Value{
			payloadField: {StringValue: payload},
			"revision":   {IntegerValue: revision},
		},
	}
	_, err := s.svc.Projects.Databases.Documents.Patch(s.docName(key), doc).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("patch document %s: %w", key, err)
	}
	return nil
}
