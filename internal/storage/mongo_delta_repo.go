package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB delta repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxelgen
	Collection string // e.g. voxel_deltas
}

// MongoDeltaRepo implements DeltaRepo on a MongoDB collection, one document per edited voxel.
type MongoDeltaRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

type deltaDoc struct {
	CX        int       `bson:"cx"`
	CY        int       `bson:"cy"`
	CZ        int       `bson:"cz"`
	LX        int       `bson:"lx"`
	LY        int       `bson:"ly"`
	LZ        int       `bson:"lz"`
	Solid     bool      `bson:"solid"`
	Material  int       `bson:"material"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d deltaDoc) delta() VoxelDelta {
	return VoxelDelta{
		Chunk: vec.Vec3{X: d.CX, Y: d.CY, Z: d.CZ},
		Local: vec.Vec3{X: d.LX, Y: d.LY, Z: d.LZ},
		Voxel: world.Voxel{Solid: d.Solid, Material: world.MaterialID(d.Material)},
	}
}

var deltaSort = bson.D{
	{Key: "cx", Value: 1}, {Key: "cy", Value: 1}, {Key: "cz", Value: 1},
	{Key: "lx", Value: 1}, {Key: "ly", Value: 1}, {Key: "lz", Value: 1},
}

// NewMongoDeltaRepo establishes connection and returns repository.
func NewMongoDeltaRepo(cfg MongoConfig) (*MongoDeltaRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxelgen"
	}
	if cfg.Collection == "" {
		cfg.Collection = "voxel_deltas"
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

	repo := &MongoDeltaRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (m *MongoDeltaRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	idx := mongo.IndexModel{
		Keys:    deltaSort,
		Options: options.Index().SetUnique(true).SetName("voxel_unique"),
	}
	_, err := m.collection.Indexes().CreateOne(ctx, idx)
	return err
}

// Save upserts the voxel document.
func (m *MongoDeltaRepo) Save(ctx context.Context, d VoxelDelta) error {
	if err := validateDelta(d); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	filter := bson.M{
		"cx": d.Chunk.X, "cy": d.Chunk.Y, "cz": d.Chunk.Z,
		"lx": d.Local.X, "ly": d.Local.Y, "lz": d.Local.Z,
	}
	update := bson.M{"$set": bson.M{
		"solid":      d.Voxel.Solid,
		"material":   int(d.Voxel.Material),
		"updated_at": time.Now(),
	}}
	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert delta %s/%s: %w", d.Chunk, d.Local, err)
	}
	return nil
}

func (m *MongoDeltaRepo) LoadChunk(ctx context.Context, chunk vec.Vec3) ([]VoxelDelta, error) {
	return m.find(ctx, bson.M{"cx": chunk.X, "cy": chunk.Y, "cz": chunk.Z})
}

func (m *MongoDeltaRepo) LoadAll(ctx context.Context) ([]VoxelDelta, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoDeltaRepo) find(ctx context.Context, filter bson.M) ([]VoxelDelta, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	cur, err := m.collection.Find(ctx, filter, options.Find().SetSort(deltaSort))
	if err != nil {
		return nil, fmt.Errorf("mongo find deltas: %w", err)
	}
	var docs []deltaDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode deltas: %w", err)
	}

	out := make([]VoxelDelta, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.delta())
	}
	return out, nil
}

func (m *MongoDeltaRepo) DeleteChunk(ctx context.Context, chunk vec.Vec3) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err := m.collection.DeleteMany(ctx, bson.M{"cx": chunk.X, "cy": chunk.Y, "cz": chunk.Z})
	return err
}

// Close terminates connection.
func (m *MongoDeltaRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
