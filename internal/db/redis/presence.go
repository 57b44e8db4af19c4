package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Presence mirrors live room membership into Redis. Each campaign gets a
// hash of connected userId -> display name, and every join/leave is also
// announced on a pub/sub channel so processes without a websocket (admin
// tooling, future server replicas) can observe room activity.
type Presence struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// PresenceEvent is the payload published on a campaign's presence channel.
type PresenceEvent struct {
	Event      string `json:"event"`
	CampaignID string `json:"campaignId"`
	UserID     string `json:"userId"`
	Name       string `json:"name,omitempty"`
}

// NewPresence creates a presence registry backed by the given client.
func NewPresence(client *redis.Client, logger *zap.SugaredLogger) *Presence {
	return &Presence{client: client, logger: logger}
}

func membersKey(campaignID string) string {
	return "presence:members:" + campaignID
}

func seenKey(campaignID, userID string) string {
	return "presence:seen:" + campaignID + ":" + userID
}

// Channel returns the pub/sub channel presence events are published on.
func Channel(campaignID string) string {
	return "presence:events:" + campaignID
}

// Join records the user in the campaign's membership hash and announces it.
func (p *Presence) Join(ctx context.Context, campaignID, userID, name string) error {
	if err := HashSet(ctx, p.client, membersKey(campaignID), map[string]interface{}{userID: name}); err != nil {
		return err
	}
	return p.announce(ctx, PresenceEvent{Event: "join", CampaignID: campaignID, UserID: userID, Name: name})
}

// Leave removes the user from the membership hash and announces it.
func (p *Presence) Leave(ctx context.Context, campaignID, userID string) error {
	if err := p.client.HDel(ctx, membersKey(campaignID), userID).Err(); err != nil {
		return err
	}
	return p.announce(ctx, PresenceEvent{Event: "leave", CampaignID: campaignID, UserID: userID})
}

// Members returns userId -> display name for everyone in the campaign room.
func (p *Presence) Members(ctx context.Context, campaignID string) (map[string]string, error) {
	return HashGetAll(ctx, p.client, membersKey(campaignID))
}

// Member returns a single user's display name, or a redis.Nil error when
// the user is not in the room.
func (p *Presence) Member(ctx context.Context, campaignID, userID string) (string, error) {
	return HashGet(ctx, p.client, membersKey(campaignID), userID)
}

// Heartbeat refreshes the user's liveness key. The key expires on its own
// once the connection is gone and no further heartbeats arrive.
func (p *Presence) Heartbeat(ctx context.Context, campaignID, userID string, ttl time.Duration) error {
	return SetWithTTL(ctx, p.client, seenKey(campaignID, userID), time.Now().Format(time.RFC3339Nano), ttl)
}

// LastSeen returns the timestamp of the user's most recent heartbeat, or a
// redis.Nil error when it has expired.
func (p *Presence) LastSeen(ctx context.Context, campaignID, userID string) (string, error) {
	return Get(ctx, p.client, seenKey(campaignID, userID))
}

// Watch subscribes to a campaign's presence channel. The caller owns the
// returned subscription and must Close it.
func (p *Presence) Watch(ctx context.Context, campaignID string) *redis.PubSub {
	return Subscribe(ctx, p.client, Channel(campaignID))
}

// Clear drops a campaign's membership hash, e.g. after its room is torn
// down, so stale entries from a crashed server do not linger.
func (p *Presence) Clear(ctx context.Context, campaignID string) error {
	return Delete(ctx, p.client, membersKey(campaignID))
}

func (p *Presence) announce(ctx context.Context, event PresenceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return Publish(ctx, p.client, Channel(event.CampaignID), payload)
}
