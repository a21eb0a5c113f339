package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig holds connection settings for the Mongo-backed store.
type MongoConfig struct {
	ConnectionURL   string        `env:"MONGODB_URL,required"`
	Database        string        `env:"MONGODB_DATABASE" envDefault:"billing"`
	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"100"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"1"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s"`
	RetryAttempts   int           `env:"MONGODB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"MONGODB_RETRY_INTERVAL" envDefault:"5s"`
}

var ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")

// MongoStore persists documents in MongoDB. Batches commit inside a
// multi-document transaction, which requires a replica set deployment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB with bounded retries and returns a store
// bound to the configured database.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	var lastErr error
	for range max(cfg.RetryAttempts, 1) {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return &MongoStore{client: client, db: client.Database(cfg.Database)}, nil
			}
		}
		lastErr = err
		time.Sleep(cfg.RetryInterval)
	}
	return nil, errors.Join(ErrFailedToConnectToMongo, lastErr)
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Healthcheck returns a probe function suitable for readiness endpoints.
func (s *MongoStore) Healthcheck() func(context.Context) error {
	return func(ctx context.Context) error {
		return s.client.Ping(ctx, nil)
	}
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) (Document, error) {
	if collection == "" || key == "" {
		return nil, ErrInvalidKey
	}

	var doc Document
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo get %s/%s: %w", collection, key, err)
	}
	delete(doc, "_id")
	return doc, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, key string, doc Document) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *MongoStore) Merge(ctx context.Context, collection, key string, doc Document) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	_, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": flattenForSet(doc)},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo merge %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, key string) error {
	if collection == "" || key == "" {
		return ErrInvalidKey
	}

	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("mongo delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, collection string, doc Document) (string, error) {
	if collection == "" {
		return "", ErrInvalidKey
	}

	id := uuid.New().String()
	insert := cloneDoc(doc)
	insert["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, insert); err != nil {
		return "", fmt.Errorf("mongo append %s: %w", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, filter map[string]any, limit int) ([]Document, error) {
	opts := options.Find()
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []Document
	for cursor.Next(ctx) {
		var doc Document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode %s: %w", collection, err)
		}
		delete(doc, "_id")
		out = append(out, doc)
	}
	return out, cursor.Err()
}

func (s *MongoStore) Batch() Batch {
	return &mongoBatch{store: s}
}

type mongoBatch struct {
	store *MongoStore
	ops   []op
}

func (b *mongoBatch) Set(collection, key string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opSet, collection: collection, key: key, doc: doc})
	return b
}

func (b *mongoBatch) Merge(collection, key string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opMerge, collection: collection, key: key, doc: doc})
	return b
}

func (b *mongoBatch) Append(collection string, doc Document) Batch {
	b.ops = append(b.ops, op{kind: opAppend, collection: collection, doc: doc})
	return b
}

func (b *mongoBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return ErrBatchEmpty
	}

	session, err := b.store.client.StartSession()
	if err != nil {
		return errors.Join(ErrCommitFailed, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		for _, o := range b.ops {
			var err error
			switch o.kind {
			case opSet:
				err = b.store.Set(ctx, o.collection, o.key, o.doc)
			case opMerge:
				err = b.store.Merge(ctx, o.collection, o.key, o.doc)
			case opAppend:
				_, err = b.store.Append(ctx, o.collection, o.doc)
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.Join(ErrCommitFailed, err)
	}
	return nil
}

// flattenForSet converts nested maps into dotted $set paths so merging never
// clobbers the sibling fields of a nested object. Explicit nils stay as-is to
// null the stored field.
func flattenForSet(doc Document) bson.M {
	out := bson.M{}
	var walk func(prefix string, m Document)
	walk = func(prefix string, m Document) {
		for k, v := range m {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
				walk(path, sub)
				continue
			}
			out[path] = v
		}
	}
	walk("", doc)
	return out
}
