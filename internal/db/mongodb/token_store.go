package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hexcrawl/backend/internal/session"
)

// TokenStore handles database operations for map tokens
type TokenStore struct {
	tokens *mongo.Collection
}

// NewTokenStore creates a new TokenStore
func NewTokenStore(db *mongo.Database, collName string) *TokenStore {
	return &TokenStore{
		tokens: db.Collection(collName),
	}
}

// List returns every token in a campaign.
func (s *TokenStore) List(ctx context.Context, campaignID string) ([]*session.Token, error) {
	cursor, err := s.tokens.Find(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []*session.Token
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Create inserts a new token
func (s *TokenStore) Create(ctx context.Context, token *session.Token) error {
	_, err := s.tokens.InsertOne(ctx, token)
	return err
}

// UpdatePosition moves a token to a new hex
func (s *TokenStore) UpdatePosition(ctx context.Context, tokenID, hexKey string) error {
	_, err := s.tokens.UpdateOne(ctx,
		bson.M{"_id": tokenID},
		bson.M{"$set": bson.M{"hexKey": hexKey}})
	return err
}

// UpdateFields applies the non-nil fields of a token update.
func (s *TokenStore) UpdateFields(ctx context.Context, tokenID string, updates session.TokenUpdates) error {
	set := bson.M{}
	if updates.Icon != nil {
		set["icon"] = *updates.Icon
	}
	if updates.Color != nil {
		set["color"] = *updates.Color
	}
	if updates.Visible != nil {
		set["visible"] = *updates.Visible
	}
	if updates.Label != nil {
		set["label"] = *updates.Label
	}
	if len(set) == 0 {
		return nil
	}
	_, err := s.tokens.UpdateOne(ctx, bson.M{"_id": tokenID}, bson.M{"$set": set})
	return err
}

// Delete removes a token
func (s *TokenStore) Delete(ctx context.Context, tokenID string) error {
	_, err := s.tokens.DeleteOne(ctx, bson.M{"_id": tokenID})
	return err
}
