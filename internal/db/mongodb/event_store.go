package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hexcrawl/backend/internal/session"
)

// EventStore appends session audit events. It backs the Redis event queue
// worker; the engine itself never writes here directly.
type EventStore struct {
	events *mongo.Collection
}

// NewEventStore creates a new EventStore
func NewEventStore(db *mongo.Database, collName string) *EventStore {
	return &EventStore{
		events: db.Collection(collName),
	}
}

// Record appends one event.
func (s *EventStore) Record(ctx context.Context, event session.Event) error {
	_, err := s.events.InsertOne(ctx, event)
	return err
}

// RecordBatch appends a batch of events in one write.
func (s *EventStore) RecordBatch(ctx context.Context, events []session.Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(events))
	for _, event := range events {
		docs = append(docs, event)
	}
	_, err := s.events.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	return err
}

// ListBySession returns a session's events in chronological order.
func (s *EventStore) ListBySession(ctx context.Context, sessionID string) ([]session.Event, error) {
	cursor, err := s.events.Find(ctx, bson.M{"sessionId": sessionID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []session.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
