package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hexcrawl/backend/internal/session"
)

type hexDoc struct {
	CampaignID string `bson:"campaignId"`
	HexKey     string `bson:"hexKey"`
	Terrain    string `bson:"terrain"`
}

// HexStore persists campaign map terrain, one document per hex.
type HexStore struct {
	hexes *mongo.Collection
}

// NewHexStore creates a new HexStore
func NewHexStore(db *mongo.Database, collName string) *HexStore {
	return &HexStore{
		hexes: db.Collection(collName),
	}
}

// Load returns hexKey -> terrain for a campaign.
func (s *HexStore) Load(ctx context.Context, campaignID string) (map[string]string, error) {
	cursor, err := s.hexes.Find(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	terrain := make(map[string]string)
	for cursor.Next(ctx) {
		var doc hexDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		terrain[doc.HexKey] = doc.Terrain
	}
	return terrain, cursor.Err()
}

// SetTerrain upserts terrain for each changed hex.
func (s *HexStore) SetTerrain(ctx context.Context, campaignID string, changes []session.TerrainChange) error {
	if len(changes) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(changes))
	for _, change := range changes {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"campaignId": campaignID, "hexKey": change.Key}).
			SetUpdate(bson.M{"$set": hexDoc{
				CampaignID: campaignID,
				HexKey:     change.Key,
				Terrain:    change.Terrain,
			}}).
			SetUpsert(true))
	}

	_, err := s.hexes.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}
