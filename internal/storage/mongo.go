package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"conversation-transcriber/internal/models"
)

// Collection names.
const (
	SessionsCollection    = "sessions"
	TranscriptsCollection = "transcripts"
)

// Mongo is a Gateway backed by MongoDB.
type Mongo struct {
	sessions    *mongo.Collection
	transcripts *mongo.Collection
	now         func() time.Time
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// NewMongo creates a store over db.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		sessions:    db.Collection(SessionsCollection),
		transcripts: db.Collection(TranscriptsCollection),
		now:         time.Now,
	}
}

// EnsureIndexes creates the indexes the queries rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	if _, err := m.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "type", Value: 1}, {Key: "ended_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := m.transcripts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "occurred_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create transcripts index: %w", err)
	}
	return nil
}

func openSession(filter bson.D) bson.D {
	return append(filter, bson.E{Key: "ended_at", Value: bson.D{{Key: "$exists", Value: false}}})
}

func (m *Mongo) GetOrCreateActive(ctx context.Context, ownerID, sessionType string) (models.Session, error) {
	now := m.now()
	filter := openSession(bson.D{{Key: "owner_id", Value: ownerID}, {Key: "type", Value: sessionType}})
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: now}}},
		{Key: "$setOnInsert", Value: bson.D{
			{Key: "_id", Value: uuid.NewString()},
			{Key: "started_at", Value: now},
		}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var s models.Session
	if err := m.sessions.FindOneAndUpdate(ctx, filter, update, opts).Decode(&s); err != nil {
		return models.Session{}, fmt.Errorf("get or create session: %w", err)
	}
	return s, nil
}

func (m *Mongo) TouchSession(ctx context.Context, sessionID string) error {
	return m.updateOpen(ctx, sessionID, bson.D{{Key: "updated_at", Value: m.now()}})
}

func (m *Mongo) EndSession(ctx context.Context, sessionID string) error {
	now := m.now()
	return m.updateOpen(ctx, sessionID, bson.D{{Key: "ended_at", Value: now}, {Key: "updated_at", Value: now}})
}

func (m *Mongo) updateOpen(ctx context.Context, sessionID string, set bson.D) error {
	res, err := m.sessions.UpdateOne(ctx,
		openSession(bson.D{{Key: "_id", Value: sessionID}}),
		bson.D{{Key: "$set", Value: set}},
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sessionID, err)
	}
	if res.MatchedCount == 0 {
		return m.missing(ctx, sessionID)
	}
	return nil
}

// missing distinguishes an unknown session from an ended one.
func (m *Mongo) missing(ctx context.Context, sessionID string) error {
	err := m.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: sessionID}}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup session %s: %w", sessionID, err)
	}
	return ErrSessionEnded
}

func (m *Mongo) AppendTranscript(ctx context.Context, turn models.Turn) error {
	if _, err := m.transcripts.InsertOne(ctx, TranscriptFrom(turn, m.now())); err != nil {
		return fmt.Errorf("append transcript %s: %w", turn.ID, err)
	}
	return nil
}

func (m *Mongo) ListTranscripts(ctx context.Context, sessionID string) ([]Transcript, error) {
	cur, err := m.transcripts.Find(ctx,
		bson.D{{Key: "session_id", Value: sessionID}},
		options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	var out []Transcript
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode transcripts: %w", err)
	}
	return out, nil
}
