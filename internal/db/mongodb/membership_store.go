package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hexcrawl/backend/internal/session"
)

// ErrNotMember is returned when a user has no membership row for a campaign.
var ErrNotMember = errors.New("user is not a member of this campaign")

// Membership ties a user to a campaign with a role.
type Membership struct {
	CampaignID string       `bson:"campaignId" json:"campaignId"`
	UserID     string       `bson:"userId" json:"userId"`
	Name       string       `bson:"name" json:"name"`
	Role       session.Role `bson:"role" json:"role"`
}

// MembershipStore handles database operations for campaign membership
type MembershipStore struct {
	members *mongo.Collection
}

// NewMembershipStore creates a new MembershipStore
func NewMembershipStore(db *mongo.Database, collName string) *MembershipStore {
	return &MembershipStore{
		members: db.Collection(collName),
	}
}

// Get finds a user's membership in a campaign
func (s *MembershipStore) Get(ctx context.Context, campaignID, userID string) (*Membership, error) {
	var m Membership
	err := s.members.FindOne(ctx, bson.M{"campaignId": campaignID, "userId": userID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert creates or updates a membership row
func (s *MembershipStore) Upsert(ctx context.Context, m Membership) error {
	filter := bson.M{"campaignId": m.CampaignID, "userId": m.UserID}
	_, err := s.members.UpdateOne(ctx, filter, bson.M{"$set": m}, options.Update().SetUpsert(true))
	return err
}

// List returns every member of a campaign
func (s *MembershipStore) List(ctx context.Context, campaignID string) ([]Membership, error) {
	cursor, err := s.members.Find(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var members []Membership
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}
