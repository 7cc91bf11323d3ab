// Package mongostore implements deps.Store on MongoDB.
//
// The three relations map to the collections file, skipped_file and
// dependency, each with a unique compound index on its key.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/dependents/pkg/deps"
)

// DefaultDatabase is used when the connection URI names no database.
const DefaultDatabase = "dependents"

const (
	collFile       = "file"
	collSkipped    = "skipped_file"
	collDependency = "dependency"
)

// Store is a MongoDB-backed edge store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri, selects database (DefaultDatabase if empty) and
// ensures the indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	if database == "" {
		database = DefaultDatabase
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collFile: {{
			Keys:    bson.D{{Key: "project_id", Value: 1}, {Key: "file_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		collSkipped: {
			{
				Keys:    bson.D{{Key: "project_id", Value: 1}, {Key: "file_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "reason", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		collDependency: {
			{
				Keys: bson.D{
					{Key: "project_id", Value: 1},
					{Key: "file_id", Value: 1},
					{Key: "dependency_project_id", Value: 1},
					{Key: "dependency_file_id", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "dependency_project_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func fileKey(id deps.FileIdentifier) bson.D {
	return bson.D{{Key: "project_id", Value: id.ProjectID}, {Key: "file_id", Value: id.FileID}}
}

func (s *Store) UpsertEdge(ctx context.Context, e deps.Edge) error {
	filter := bson.D{
		{Key: "project_id", Value: e.ProjectID},
		{Key: "file_id", Value: e.FileID},
		{Key: "dependency_project_id", Value: e.DependencyProjectID},
		{Key: "dependency_file_id", Value: e.DependencyFileID},
	}
	_, err := s.db.Collection(collDependency).UpdateOne(ctx, filter,
		bson.D{{Key: "$setOnInsert", Value: filter}},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race against an identical edge.
		return nil
	}
	return wrap("upsert edge", err)
}

func (s *Store) UpsertFileResolution(ctx context.Context, id deps.FileIdentifier, count int) error {
	_, err := s.db.Collection(collFile).UpdateOne(ctx, fileKey(id),
		bson.D{{Key: "$set", Value: bson.D{{Key: "dependency_count", Value: count}}}},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.db.Collection(collFile).UpdateOne(ctx, fileKey(id),
			bson.D{{Key: "$set", Value: bson.D{{Key: "dependency_count", Value: count}}}})
	}
	return wrap("upsert file", err)
}

func (s *Store) UpsertSkipped(ctx context.Context, f deps.SkippedFile) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "reason", Value: int(f.Reason)},
		{Key: "timestamp", Value: f.Timestamp},
		{Key: "url", Value: f.URL},
	}}}
	_, err := s.db.Collection(collSkipped).UpdateOne(ctx, fileKey(f.ID()), update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		_, err = s.db.Collection(collSkipped).UpdateOne(ctx, fileKey(f.ID()), update)
	}
	return wrap("upsert skipped file", err)
}

func (s *Store) DeleteSkipped(ctx context.Context, id deps.FileIdentifier) error {
	_, err := s.db.Collection(collSkipped).DeleteOne(ctx, fileKey(id))
	return wrap("delete skipped file", err)
}

func (s *Store) CountEdges(ctx context.Context, id deps.FileIdentifier) (int, error) {
	n, err := s.db.Collection(collDependency).CountDocuments(ctx, fileKey(id))
	if err != nil {
		return 0, wrap("count edges", err)
	}
	return int(n), nil
}

func (s *Store) FindEdge(ctx context.Context, id deps.FileIdentifier, dependencyProjectID int64) (*deps.Edge, error) {
	filter := append(fileKey(id), bson.E{Key: "dependency_project_id", Value: dependencyProjectID})
	var e deps.Edge
	err := s.db.Collection(collDependency).FindOne(ctx, filter,
		options.FindOne().SetSort(bson.D{{Key: "dependency_file_id", Value: 1}})).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find edge", err)
	}
	return &e, nil
}

func (s *Store) FindFileResolution(ctx context.Context, id deps.FileIdentifier) (*deps.FileResolution, error) {
	var r deps.FileResolution
	err := s.db.Collection(collFile).FindOne(ctx, fileKey(id)).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("find file", err)
	}
	return &r, nil
}

func (s *Store) ListSkipped(ctx context.Context, f deps.SkippedFilter) ([]deps.SkippedFile, error) {
	filter := bson.D{}
	if f.Reason != nil {
		filter = append(filter, bson.E{Key: "reason", Value: int(*f.Reason)})
	}
	if f.Timestamp != nil {
		filter = append(filter, bson.E{Key: "timestamp", Value: *f.Timestamp})
	}
	cur, err := s.db.Collection(collSkipped).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "project_id", Value: 1}, {Key: "file_id", Value: 1}}))
	if err != nil {
		return nil, wrap("list skipped files", err)
	}
	var out []deps.SkippedFile
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("list skipped files", err)
	}
	return out, nil
}

func (s *Store) ListDependents(ctx context.Context, dependencyProjectID int64) ([]deps.Edge, error) {
	cur, err := s.db.Collection(collDependency).Find(ctx,
		bson.D{{Key: "dependency_project_id", Value: dependencyProjectID}},
		options.Find().SetSort(bson.D{
			{Key: "project_id", Value: 1},
			{Key: "file_id", Value: 1},
			{Key: "dependency_file_id", Value: 1},
		}))
	if err != nil {
		return nil, wrap("list dependents", err)
	}
	var out []deps.Edge
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("list dependents", err)
	}
	return out, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("mongostore: %s: %w", op, err)
}

var _ deps.Store = (*Store)(nil)
