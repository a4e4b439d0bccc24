package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/sahayak/backend/internal/model/chat"
)

// MongoConfig locates the collection holding one document per user.
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// MongoStore keeps records as documents filtered by user_id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects, pings and ensures a unique user_id index.
func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure user_id index: %w", err)
	}

	return &MongoStore{client: client, collection: collection}, nil
}

// Get loads the record for userID. The document _id is ignored.
func (s *MongoStore) Get(ctx context.Context, userID string) (*chat.Record, error) {
	var doc bson.D
	err := s.collection.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get %s: %w", userID, err)
	}
	return documentToRecord(userID, doc)
}

// Put replaces the user's document, inserting it when absent.
func (s *MongoStore) Put(ctx context.Context, record *chat.Record) error {
	doc, err := recordToDocument(record)
	if err != nil {
		return err
	}

	_, err = s.collection.ReplaceOne(ctx,
		bson.D{{Key: "user_id", Value: record.UserID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo put %s: %w", record.UserID, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// recordToDocument goes through JSON so the document keeps the record's field
// names and emotion order.
func recordToDocument(record *chat.Record) (bson.D, error) {
	data, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("convert record %s: %w", record.UserID, err)
	}
	return doc, nil
}

func documentToRecord(userID string, doc bson.D) (*chat.Record, error) {
	filtered := make(bson.D, 0, len(doc))
	for _, elem := range doc {
		if elem.Key == "_id" {
			continue
		}
		filtered = append(filtered, elem)
	}

	data, err := bson.MarshalExtJSON(filtered, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert document %s: %w", userID, err)
	}
	return decodeRecord(userID, data)
}
