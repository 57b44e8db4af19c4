package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hexcrawl/backend/internal/hexgrid"
)

// handleHexReveal adds viewer entries to the fog ledger for the requested
// hexes, persists the visibility records, and emits an individualized
// hex:revealed event per affected player carrying the revealed terrain and
// that player's recomputed adjacent ring.
func (e *Engine) handleHexReveal(room *Room, conn *Conn, msg HexRevealMsg) {
	if !msg.Targets.All && msg.Targets.PlayerIDs == nil {
		e.send(conn, ErrorMsg{Type: TypeError, Message: "reveal targets required"})
		return
	}

	viewers := msg.Targets.Viewers()

	room.mu.Lock()
	for _, hexKey := range msg.HexKeys {
		set, ok := room.revealed[hexKey]
		if !ok {
			set = make(map[Viewer]struct{})
			room.revealed[hexKey] = set
		}
		for _, v := range viewers {
			set[v] = struct{}{}
		}
	}

	terrain := room.terrainForLocked(msg.HexKeys)
	deliveries := make([]StagedDelivery, 0)
	for _, userID := range room.affectedPlayersLocked(msg.Targets) {
		deliveries = append(deliveries, StagedDelivery{
			UserID: userID,
			Message: HexRevealedMsg{
				Type:          TypeHexRevealed,
				HexKeys:       msg.HexKeys,
				Terrain:       terrain,
				AdjacentHexes: room.adjacentForLocked(userID),
			},
		})
	}

	description := fmt.Sprintf("Reveal %d hex(es)", len(msg.HexKeys))
	e.deliverOrStage(room, TypeHexReveal, description, deliveries)
	sessionID := room.SessionID
	room.mu.Unlock()

	if e.stores.Fog != nil {
		records := make([]VisibilityRecord, 0, len(msg.HexKeys)*len(viewers))
		now := time.Now()
		for _, hexKey := range msg.HexKeys {
			for _, v := range viewers {
				records = append(records, VisibilityRecord{
					CampaignID: room.CampaignID,
					HexKey:     hexKey,
					Viewer:     v,
					RevealedBy: conn.UserID,
					RevealedAt: now,
				})
			}
		}
		e.persist("fog reveal", func(ctx context.Context) error {
			return e.stores.Fog.Reveal(ctx, records)
		})
	}

	e.recordEvent(sessionID, EventHexReveal, conn.UserID, map[string]interface{}{
		"hexKeys": msg.HexKeys,
		"targets": msg.Targets,
	})
}

// handleHexHide is the mirror of reveal: it removes viewer entries (all
// entries when the target is "all"), drops now-empty ledger rows, and
// re-emits each affected player's adjacent ring so their fog tiers stay
// consistent.
func (e *Engine) handleHexHide(room *Room, conn *Conn, msg HexHideMsg) {
	if !msg.Targets.All && msg.Targets.PlayerIDs == nil {
		e.send(conn, ErrorMsg{Type: TypeError, Message: "hide targets required"})
		return
	}

	viewers := msg.Targets.Viewers()

	room.mu.Lock()
	var materializedKeys []string
	for _, hexKey := range msg.HexKeys {
		set, ok := room.revealed[hexKey]
		if !ok {
			continue
		}
		if msg.Targets.All {
			delete(room.revealed, hexKey)
			continue
		}
		if _, ok := set[AllViewers]; ok {
			// An all-players entry is broken into entries for the connected
			// players first, so removing the subset actually takes effect.
			delete(set, AllViewers)
			for _, c := range room.players() {
				set[ViewerOf(c.UserID)] = struct{}{}
			}
			materializedKeys = append(materializedKeys, hexKey)
		}
		for _, v := range viewers {
			delete(set, v)
		}
		if len(set) == 0 {
			delete(room.revealed, hexKey)
		}
	}

	var materialized []VisibilityRecord
	if len(materializedKeys) > 0 {
		now := time.Now()
		for _, hexKey := range materializedKeys {
			for v := range room.revealed[hexKey] {
				materialized = append(materialized, VisibilityRecord{
					CampaignID: room.CampaignID,
					HexKey:     hexKey,
					Viewer:     v,
					RevealedBy: conn.UserID,
					RevealedAt: now,
				})
			}
		}
	}

	deliveries := make([]StagedDelivery, 0)
	for _, userID := range room.affectedPlayersLocked(msg.Targets) {
		deliveries = append(deliveries, StagedDelivery{
			UserID: userID,
			Message: HexHiddenMsg{
				Type:          TypeHexHidden,
				HexKeys:       msg.HexKeys,
				AdjacentHexes: room.adjacentForLocked(userID),
			},
		})
	}

	description := fmt.Sprintf("Hide %d hex(es)", len(msg.HexKeys))
	e.deliverOrStage(room, TypeHexHide, description, deliveries)
	sessionID := room.SessionID
	room.mu.Unlock()

	if e.stores.Fog != nil {
		e.persist("fog hide", func(ctx context.Context) error {
			if len(materializedKeys) > 0 {
				// Clear the all-players rows and rewrite the surviving
				// per-player entries before deleting the targeted ones.
				if err := e.stores.Fog.Hide(ctx, room.CampaignID, materializedKeys, []Viewer{AllViewers}); err != nil {
					return err
				}
				if err := e.stores.Fog.Reveal(ctx, materialized); err != nil {
					return err
				}
			}
			return e.stores.Fog.Hide(ctx, room.CampaignID, msg.HexKeys, viewers)
		})
	}

	e.recordEvent(sessionID, EventHexHide, conn.UserID, map[string]interface{}{
		"hexKeys": msg.HexKeys,
		"targets": msg.Targets,
	})
}

// handleHexUpdate applies terrain changes and fans them out. Each player
// only receives the changes inside their revealed or adjacent sets; terrain
// they cannot see never crosses the wire.
func (e *Engine) handleHexUpdate(room *Room, conn *Conn, msg HexUpdateMsg) {
	room.mu.Lock()
	for _, change := range msg.Changes {
		room.terrain[change.Key] = change.Terrain
	}

	deliveries := make([]StagedDelivery, 0)
	for _, player := range room.players() {
		visible := room.visibleChangesLocked(player.UserID, msg.Changes)
		if len(visible) == 0 {
			continue
		}
		deliveries = append(deliveries, StagedDelivery{
			UserID:  player.UserID,
			Message: HexUpdatedMsg{Type: TypeHexUpdated, Changes: visible},
		})
	}

	description := fmt.Sprintf("Update %d hex(es)", len(msg.Changes))
	e.deliverOrStage(room, TypeHexUpdate, description, deliveries)
	sessionID := room.SessionID
	room.mu.Unlock()

	if e.stores.Hexes != nil {
		e.persist("terrain update", func(ctx context.Context) error {
			return e.stores.Hexes.SetTerrain(ctx, room.CampaignID, msg.Changes)
		})
	}

	e.recordEvent(sessionID, EventHexUpdate, conn.UserID, map[string]interface{}{
		"changes": msg.Changes,
	})
}

// ---------------------------------------------------------------------------
// Per-viewer helpers (room.mu held)
// ---------------------------------------------------------------------------

// affectedPlayersLocked resolves a target set into player user ids. "All"
// means every currently connected player; an explicit subset is taken as
// given so staged deliveries can address players who reconnect before
// publish.
func (r *Room) affectedPlayersLocked(targets TargetSet) []string {
	if !targets.All {
		ids := append([]string(nil), targets.PlayerIDs...)
		sort.Strings(ids)
		return ids
	}
	ids := make([]string, 0)
	for _, c := range r.players() {
		ids = append(ids, c.UserID)
	}
	sort.Strings(ids)
	return ids
}

// adjacentForLocked computes a player's adjacent ring with terrain.
// A hex never appears both revealed and adjacent for the same viewer:
// hexgrid.Adjacent excludes revealed hexes by construction.
func (r *Room) adjacentForLocked(userID string) []AdjacentHex {
	revealed := r.revealedSet(userID)
	adjacent := hexgrid.Adjacent(revealed, r.allHexKeys())

	keys := make([]string, 0, len(adjacent))
	for key := range adjacent {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hexes := make([]AdjacentHex, 0, len(keys))
	for _, key := range keys {
		hexes = append(hexes, AdjacentHex{Key: key, Terrain: r.terrain[key]})
	}
	return hexes
}

// terrainForLocked pairs hex keys with their current terrain values.
func (r *Room) terrainForLocked(hexKeys []string) []TerrainChange {
	terrain := make([]TerrainChange, 0, len(hexKeys))
	for _, key := range hexKeys {
		terrain = append(terrain, TerrainChange{Key: key, Terrain: r.terrain[key]})
	}
	return terrain
}

// visibleChangesLocked filters terrain changes down to what one player is
// authorized to see: hexes in their revealed set or bordering it.
func (r *Room) visibleChangesLocked(userID string, changes []TerrainChange) []TerrainChange {
	revealed := r.revealedSet(userID)
	adjacent := hexgrid.Adjacent(revealed, r.allHexKeys())

	visible := make([]TerrainChange, 0, len(changes))
	for _, change := range changes {
		if _, ok := revealed[change.Key]; ok {
			visible = append(visible, change)
			continue
		}
		if _, ok := adjacent[change.Key]; ok {
			visible = append(visible, change)
		}
	}
	return visible
}
