package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hexcrawl/backend/internal/session"
)

// viewerDoc is the persisted form of a session.Viewer. Storing the
// all-players marker as its own flag instead of a magic user id means no
// real user id can ever collide with it.
type viewerDoc struct {
	AllPlayers bool   `bson:"allPlayers"`
	UserID     string `bson:"userId,omitempty"`
}

func toViewerDoc(v session.Viewer) viewerDoc {
	return viewerDoc{AllPlayers: v.AllPlayers, UserID: v.UserID}
}

func (d viewerDoc) viewer() session.Viewer {
	if d.AllPlayers {
		return session.AllViewers
	}
	return session.ViewerOf(d.UserID)
}

type visibilityDoc struct {
	CampaignID string    `bson:"campaignId"`
	HexKey     string    `bson:"hexKey"`
	Viewer     viewerDoc `bson:"viewer"`
	RevealedBy string    `bson:"revealedBy"`
	RevealedAt time.Time `bson:"revealedAt"`
}

// FogStore persists the hex visibility ledger, unique on
// (campaign, hex, viewer).
type FogStore struct {
	visibility *mongo.Collection
}

// NewFogStore creates a new FogStore
func NewFogStore(db *mongo.Database, collName string) *FogStore {
	return &FogStore{
		visibility: db.Collection(collName),
	}
}

// Load returns every visibility record for a campaign.
func (s *FogStore) Load(ctx context.Context, campaignID string) ([]session.VisibilityRecord, error) {
	cursor, err := s.visibility.Find(ctx, bson.M{"campaignId": campaignID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []session.VisibilityRecord
	for cursor.Next(ctx) {
		var doc visibilityDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, session.VisibilityRecord{
			CampaignID: doc.CampaignID,
			HexKey:     doc.HexKey,
			Viewer:     doc.Viewer.viewer(),
			RevealedBy: doc.RevealedBy,
			RevealedAt: doc.RevealedAt,
		})
	}
	return records, cursor.Err()
}

// Reveal upserts one ledger row per record. Re-revealing an already
// revealed hex refreshes revealedBy/revealedAt and nothing else.
func (s *FogStore) Reveal(ctx context.Context, records []session.VisibilityRecord) error {
	if len(records) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc := visibilityDoc{
			CampaignID: rec.CampaignID,
			HexKey:     rec.HexKey,
			Viewer:     toViewerDoc(rec.Viewer),
			RevealedBy: rec.RevealedBy,
			RevealedAt: rec.RevealedAt,
		}
		filter := bson.M{
			"campaignId": rec.CampaignID,
			"hexKey":     rec.HexKey,
			"viewer":     doc.Viewer,
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	_, err := s.visibility.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

// Hide removes the matching ledger rows. An all-players viewer in the list
// removes every row for the hex, mirroring the in-memory semantics.
func (s *FogStore) Hide(ctx context.Context, campaignID string, hexKeys []string, viewers []session.Viewer) error {
	if len(hexKeys) == 0 || len(viewers) == 0 {
		return nil
	}

	for _, v := range viewers {
		if v.AllPlayers {
			_, err := s.visibility.DeleteMany(ctx, bson.M{
				"campaignId": campaignID,
				"hexKey":     bson.M{"$in": hexKeys},
			})
			return err
		}
	}

	docs := make([]viewerDoc, 0, len(viewers))
	for _, v := range viewers {
		docs = append(docs, toViewerDoc(v))
	}
	_, err := s.visibility.DeleteMany(ctx, bson.M{
		"campaignId": campaignID,
		"hexKey":     bson.M{"$in": hexKeys},
		"viewer":     bson.M{"$in": docs},
	})
	return err
}
