package usecase

import (
	"encoding/json"

	"xo-backend/internal/entity"
	"xo-backend/internal/registry"
)

// statePayload - builds the type-tagged room snapshot sent to clients:
// room id, state, row-major board rendering, current turn holder and the
// participant map, merged with intent-specific extras.
func statePayload(msgType string, snap entity.Snapshot, extras map[string]any) map[string]any {
	payload := map[string]any{
		"type":        msgType,
		"gameId":      snap.ID,
		"state":       snap.Status,
		"board":       snap.Board,
		"currentTurn": snap.Turn,
		"players":     snap.Players,
	}

	for key, value := range extras {
		payload[key] = value
	}

	return payload
}

// broadcast - serializes the payload once and fans it out to the room's
// connections, skipping the excluded one. A failed send to one peer never
// prevents delivery to the others.
func (that *RoomManager) broadcast(roomID string, payload map[string]any, exclude registry.Connection) {
	log := that.logger.With("method", "broadcast", "gameID", roomID)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal payload", "error", err)
		return
	}

	for _, conn := range that.registry.Connections(roomID) {
		if exclude != nil && conn.ID() == exclude.ID() {
			continue
		}

		if err = conn.WriteText(data); err != nil {
			log.Warn("failed to send to connection", "connID", conn.ID(), "error", err)
		}
	}
}

// send - delivers one payload to a single connection.
func (that *RoomManager) send(conn registry.Connection, payload map[string]any) {
	log := that.logger.With("method", "send")

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal payload", "error", err)
		return
	}

	if err = conn.WriteText(data); err != nil {
		log.Warn("failed to send to connection", "connID", conn.ID(), "error", err)
	}
}
