package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "documents"

type Store struct {
	docs *mongo.Collection
	now  func() time.Time
}

type record struct {
	Path         string    `bson:"_id"`
	Parent       string    `bson:"parent"`
	CollectionID string    `bson:"collection_id"`
	DocID        string    `bson:"doc_id"`
	Data         bson.M    `bson:"data"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		docs: db.Collection(collectionName),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func Connect(ctx context.Context, uri, database string) (*mongo.Client, *Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	st := NewStore(client.Database(database))
	if err := st.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, err
	}
	return client, st, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "parent", Value: 1}, {Key: "doc_id", Value: 1}}},
		{Keys: bson.D{{Key: "collection_id", Value: 1}, {Key: "_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path docpath.Path) (store.Document, error) {
	var rec record
	err := s.docs.FindOne(ctx, bson.M{"_id": path.String()}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	return rec.document()
}

func (s *Store) List(ctx context.Context, collection docpath.Path) ([]store.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "doc_id", Value: 1}})
	cursor, err := s.docs.Find(ctx, bson.M{"parent": collection.String()}, opts)
	if err != nil {
		return nil, err
	}
	return collect(ctx, cursor)
}

func (s *Store) Create(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	normalized, err := store.NormalizeWrite(data)
	if err != nil {
		return store.Document{}, err
	}
	now := s.now()
	rec := record{
		Path:         path.String(),
		Parent:       path.Parent().String(),
		CollectionID: path.CollectionID(),
		DocID:        path.ID(),
		Data:         bson.M(normalized),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.docs.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.Document{}, store.ErrConflict
		}
		return store.Document{}, err
	}
	return rec.document()
}

func (s *Store) Set(ctx context.Context, path docpath.Path, data map[string]any, merge bool) (store.Document, error) {
	normalized, err := store.NormalizeWrite(data)
	if err != nil {
		return store.Document{}, err
	}
	now := s.now()
	set := bson.M{"updated_at": now}
	if merge {
		for key, value := range normalized {
			set["data."+key] = value
		}
	} else {
		set["data"] = normalized
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"parent":        path.Parent().String(),
			"collection_id": path.CollectionID(),
			"doc_id":        path.ID(),
			"created_at":    now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var rec record
	if err := s.docs.FindOneAndUpdate(ctx, bson.M{"_id": path.String()}, update, opts).Decode(&rec); err != nil {
		return store.Document{}, err
	}
	return rec.document()
}

func (s *Store) Update(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	normalized, err := store.NormalizeWrite(data)
	if err != nil {
		return store.Document{}, err
	}
	set := bson.M{"updated_at": s.now()}
	for key, value := range normalized {
		set["data."+key] = value
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec record
	err = s.docs.FindOneAndUpdate(ctx, bson.M{"_id": path.String()}, bson.M{"$set": set}, opts).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	return rec.document()
}

func (s *Store) Delete(ctx context.Context, path docpath.Path) error {
	_, err := s.docs.DeleteOne(ctx, bson.M{"_id": path.String()})
	return err
}

// DeleteTree removes descendants before the document itself. It is not
// atomic: a failure part way leaves the document with fewer children.
func (s *Store) DeleteTree(ctx context.Context, path docpath.Path) (int, error) {
	prefix := "^" + regexp.QuoteMeta(path.String()+"/")
	children, err := s.docs.DeleteMany(ctx, bson.M{"_id": bson.M{"$regex": prefix}})
	if err != nil {
		return 0, err
	}
	self, err := s.docs.DeleteOne(ctx, bson.M{"_id": path.String()})
	if err != nil {
		return int(children.DeletedCount), err
	}
	return int(children.DeletedCount + self.DeletedCount), nil
}

func (s *Store) FindInGroup(ctx context.Context, collectionID, field string, value any, limit int) ([]store.Document, error) {
	want, err := store.Normalize(map[string]any{"v": value})
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
	filter := bson.M{"collection_id": collectionID, "data." + field: want["v"]}
	cursor, err := s.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return collect(ctx, cursor)
}

func (s *Store) ListGroup(ctx context.Context, collectionID string, after string, limit int) ([]store.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit))
	filter := bson.M{"collection_id": collectionID, "_id": bson.M{"$gt": after}}
	cursor, err := s.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return collect(ctx, cursor)
}

func collect(ctx context.Context, cursor *mongo.Cursor) ([]store.Document, error) {
	defer cursor.Close(ctx)
	var docs []store.Document
	for cursor.Next(ctx) {
		var rec record
		if err := cursor.Decode(&rec); err != nil {
			return nil, err
		}
		doc, err := rec.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r record) document() (store.Document, error) {
	path, err := docpath.Parse(r.Path)
	if err != nil {
		return store.Document{}, err
	}
	plain, _ := plainValue(r.Data).(map[string]any)
	data, err := store.Normalize(plain)
	if err != nil {
		return store.Document{}, fmt.Errorf("decode %s: %w", r.Path, err)
	}
	return store.Document{Path: path, Data: data, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}, nil
}

// plainValue converts driver container types into maps and slices that
// encode to JSON the same way the other backends do.
func plainValue(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = plainValue(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = plainValue(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.ObjectID:
		return v.Hex()
	default:
		return v
	}
}
