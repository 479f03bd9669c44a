package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/vrmapi/pkg/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements Store using Google Cloud Firestore. Each value
// is a document at context/{scope}/values/{key} holding the value as JSON.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// NewFirestore returns an uninitialized provider; call Init before use.
func NewFirestore(projectID, database string) *FirestoreProvider {
	return &FirestoreProvider{projectID: projectID, database: database}
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID may be empty and inferred from the environment.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) values(scope string) (*firestore.CollectionRef, error) {
	if !ValidScope(scope) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	return f.client.Collection("context").Doc(scope).Collection("values"), nil
}

// docID maps a key onto a valid document id; firestore ids cannot contain
// slashes.
func docID(key string) string {
	return strings.ReplaceAll(key, "/", "%2F")
}

// Get retrieves a value. Numbers are returned as json.Number.
func (f *FirestoreProvider) Get(ctx context.Context, scope, key string) (any, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("key cannot be empty")
	}
	coll, err := f.values(scope)
	if err != nil {
		return nil, false, err
	}
	doc, err := coll.Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to fetch context doc: %w", err)
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "context doc missing json", slog.String("scope", scope), slog.String("key", key))
		return nil, false, fmt.Errorf("context document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return nil, false, fmt.Errorf("context 'json' field is not a string")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonStr)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal context json", slog.String("scope", scope), slog.String("key", key), slog.Any("err", err))
		return nil, false, fmt.Errorf("failed to unmarshal context json: %w", err)
	}
	return v, true, nil
}

// Set stores value as a JSON string for portability.
func (f *FirestoreProvider) Set(ctx context.Context, scope, key string, value any) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal context value: %w", err)
	}
	coll, err := f.values(scope)
	if err != nil {
		return err
	}
	_, err = coll.Doc(docID(key)).Set(ctx, map[string]any{
		"key":       key,
		"json":      string(jsonBytes),
		"updatedAt": time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save context value: %w", err)
	}
	return nil
}

// Keys lists the keys stored in scope in sorted order.
func (f *FirestoreProvider) Keys(ctx context.Context, scope string) ([]string, error) {
	coll, err := f.values(scope)
	if err != nil {
		return nil, err
	}
	iter := coll.Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate context: %w", err)
		}
		key := doc.Ref.ID
		if v, err := doc.DataAt("key"); err == nil {
			if s, ok := v.(string); ok {
				key = s
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
