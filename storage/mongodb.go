package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Seungwon-Robin/Chatbot/config"
	"github.com/Seungwon-Robin/Chatbot/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps the song catalog in a MongoDB collection
type MongoStore struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
}

func NewMongoStore(cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Mongo.Database)
	collection := database.Collection(cfg.Mongo.Collection)

	log.Printf("Connected to MongoDB: %s/%s", cfg.Mongo.Database, cfg.Mongo.Collection)

	return &MongoStore{
		client:     client,
		database:   database,
		collection: collection,
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// create the unique position index if it doesn't exist
func (s *MongoStore) EnsurePositionIndex() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cursor, err := s.collection.Indexes().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	defer cursor.Close(ctx)

	var indexes []bson.M
	if err := cursor.All(ctx, &indexes); err != nil {
		return fmt.Errorf("failed to decode indexes: %w", err)
	}

	for _, idx := range indexes {
		if name, ok := idx["name"].(string); ok && name == "position_index" {
			log.Println("Position index already exists")
			return nil
		}
	}

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "position", Value: 1}},
		Options: options.Index().
			SetName("position_index").
			SetUnique(true),
	}

	if _, err := s.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create position index: %w", err)
	}

	log.Println("Position index created")
	return nil
}

// LoadCatalog reads every song ordered by position.
func (s *MongoStore) LoadCatalog(ctx context.Context) (*Catalog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch songs: %w", ErrLoad, err)
	}
	defer cursor.Close(ctx)

	var docs []models.SongDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: failed to decode songs: %w", ErrLoad, err)
	}

	catalog, err := catalogFromDocuments(docs)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded catalog from MongoDB (%d songs)", catalog.Len())
	return catalog, nil
}

// ReplaceCatalog drops every stored song and inserts the catalog in order.
func (s *MongoStore) ReplaceCatalog(ctx context.Context, catalog *Catalog) error {
	log.Printf("Replacing MongoDB catalog with %d songs...", catalog.Len())
	startTime := time.Now()

	if catalog.Len() == 0 {
		return fmt.Errorf("no songs to insert")
	}

	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete songs: %w", err)
	}

	now := time.Now()
	docs := make([]interface{}, catalog.Len())
	for i, song := range catalog.rows {
		docs[i] = models.SongDocument{Position: i, Song: song, CreatedAt: now}
	}

	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert songs: %w", err)
	}

	log.Printf("Inserted %d songs in %v", len(docs), time.Since(startTime))
	return nil
}

// return the number of songs in the collection
func (s *MongoStore) CountSongs(ctx context.Context) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return count, nil
}

// catalogFromDocuments requires positions 0..n-1 with no gaps, otherwise the
// rows could not line up with the index.
func catalogFromDocuments(docs []models.SongDocument) (*Catalog, error) {
	rows := make([]models.Song, len(docs))
	for i, doc := range docs {
		if doc.Position != i {
			return nil, fmt.Errorf("%w: expected song position %d, found %d", ErrLoad, i, doc.Position)
		}
		rows[i] = doc.Song
	}
	return &Catalog{rows: rows}, nil
}
