package websocket

// Message is the inbound client envelope. The type field selects the
// intent; the remaining fields are intent-specific. Coordinates and the
// creatorStarts flag are pointers so a missing field is distinguishable
// from a zero value.
type Message struct {
	Type          string `json:"type"`
	GameID        string `json:"gameId,omitempty"`
	PlayerID      string `json:"playerId,omitempty"`
	Name          string `json:"name,omitempty"`
	X             *int   `json:"x,omitempty"`
	Y             *int   `json:"y,omitempty"`
	CreatorStarts *bool  `json:"creatorStarts,omitempty"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type welcomePayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
