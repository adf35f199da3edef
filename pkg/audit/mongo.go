package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// MongoRecorder stores entries in a MongoDB collection. Writes happen in the
// background so request latency does not depend on Mongo.
type MongoRecorder struct {
	client     *mongo.Client
	collection *mongo.Collection
	service    string
	logger     *zap.Logger
	pending    sync.WaitGroup
}

func NewMongoRecorder(cfg *config.MongoDBConfig, service string, logger *zap.Logger) (*MongoRecorder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	rec := newMongoRecorder(client.Database(cfg.Database).Collection(cfg.Collection), service, logger)
	rec.client = client
	return rec, nil
}

func newMongoRecorder(collection *mongo.Collection, service string, logger *zap.Logger) *MongoRecorder {
	return &MongoRecorder{
		collection: collection,
		service:    service,
		logger:     logger.Named("audit"),
	}
}

func (m *MongoRecorder) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

// Close waits for background writes and disconnects.
func (m *MongoRecorder) Close(ctx context.Context) error {
	m.pending.Wait()
	return m.client.Disconnect(ctx)
}

func (m *MongoRecorder) Record(_ context.Context, entry Entry) {
	if entry.Service == "" {
		entry.Service = m.service
	}
	entry.CreatedAt = time.Now().UTC()

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := m.insert(ctx, entry); err != nil {
			m.logger.Error("Failed to write audit log",
				zap.String("action", entry.Action),
				zap.String("entity_id", entry.EntityID),
				zap.Error(err))
		}
	}()
}

func (m *MongoRecorder) insert(ctx context.Context, entry Entry) error {
	if _, err := m.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (m *MongoRecorder) History(ctx context.Context, entityID string, limit int64) ([]*Entry, error) {
	filter := bson.M{"entity_id": entityID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit logs: %w", err)
	}
	return entries, nil
}
