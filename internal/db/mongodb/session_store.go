package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hexcrawl/backend/internal/session"
)

// SessionStore handles database operations for game session records
type SessionStore struct {
	sessions *mongo.Collection
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(db *mongo.Database, collName string) *SessionStore {
	return &SessionStore{
		sessions: db.Collection(collName),
	}
}

// CreateSession inserts a new session record
func (s *SessionStore) CreateSession(ctx context.Context, rec session.SessionRecord) error {
	_, err := s.sessions.InsertOne(ctx, rec)
	return err
}

// UpdateSessionStatus updates a session's lifecycle status, setting the end
// timestamp when one is provided.
func (s *SessionStore) UpdateSessionStatus(ctx context.Context, sessionID string, status session.Status, endedAt *time.Time) error {
	update := bson.M{"status": status}
	if endedAt != nil {
		update["endedAt"] = *endedAt
	}
	_, err := s.sessions.UpdateOne(ctx, bson.M{"_id": sessionID}, bson.M{"$set": update})
	return err
}

// GetSession fetches one session record by id
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (*session.SessionRecord, error) {
	var rec session.SessionRecord
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
