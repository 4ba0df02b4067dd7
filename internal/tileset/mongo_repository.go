package tileset

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB definition store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. autotile
	Collection string // e.g. tile_definitions
}

// MongoRepository implements Repository on a MongoDB collection.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoRepository connects and ensures the unique tile_id index.
func NewMongoRepository(cfg MongoConfig) (*MongoRepository, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "autotile"
	}
	if cfg.Collection == "" {
		cfg.Collection = "tile_definitions"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	repo := &MongoRepository{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logging.Info("🍃 MongoDB tile repository connected: %s/%s", cfg.Database, cfg.Collection)
	return repo, nil
}

func (m *MongoRepository) ensureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "tile_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("tile_id_unique"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, idx)
	return err
}

func (m *MongoRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.ctxTimeout)
}

// Get implements Repository.
func (m *MongoRepository) Get(ctx context.Context, id autotile.TileID) (Definition, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var d Definition
	err := m.collection.FindOne(ctx, bson.M{"tile_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return Definition{}, ErrDefinitionNotFound
	}
	if err != nil {
		return Definition{}, err
	}
	return d, nil
}

// List implements Repository.
func (m *MongoRepository) List(ctx context.Context) ([]Definition, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	cur, err := m.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "tile_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var defs []Definition
	if err := cur.All(ctx, &defs); err != nil {
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	return defs, nil
}

// Save upserts the definition by tile_id.
func (m *MongoRepository) Save(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.collection.ReplaceOne(ctx, bson.M{"tile_id": def.ID}, def, options.Replace().SetUpsert(true))
	return err
}

// Delete implements Repository.
func (m *MongoRepository) Delete(ctx context.Context, id autotile.TileID) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.collection.DeleteOne(ctx, bson.M{"tile_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

// Close disconnects the client.
func (m *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
