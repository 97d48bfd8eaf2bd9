package protocol

import "time"

// EventType identifies a server-to-client message.
type EventType string

const (
	EvRoleAssigned      EventType = "roleAssigned"
	EvSessionID         EventType = "sessionId"
	EvBoardState        EventType = "boardState"
	EvMoveHistory       EventType = "moveHistory"
	EvChatHistory       EventType = "chatHistory"
	EvChatMessage       EventType = "chatMessage"
	EvPlayersUpdate     EventType = "playersUpdate"
	EvMove              EventType = "move"
	EvMoveError         EventType = "moveError"
	EvGameEnd           EventType = "gameEnd"
	EvDrawOfferReceived EventType = "drawOfferReceived"
	EvDrawOfferDeclined EventType = "drawOfferDeclined"
	EvChatError         EventType = "chatError"
	EvError             EventType = "error"
)

// Event is the server envelope. Payload is one of the structs below,
// chosen by Type.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// RoleAssigned is unicast to a joining connection.
type RoleAssigned struct {
	Role string `json:"role"`
}

// SessionID carries the reconnection token, unicast on seat assignment.
type SessionID struct {
	Token string `json:"token"`
}

// BoardState is the external position representation (FEN).
type BoardState struct {
	FEN  string `json:"fen"`
	Turn string `json:"turn"`
}

// MoveRecord is one accepted move as stored in room history.
type MoveRecord struct {
	Notation string    `json:"move"`
	Color    string    `json:"color"`
	PlayedAt time.Time `json:"playedAt"`
}

// MovePlayed echoes an accepted move to the room.
type MovePlayed struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Notation string `json:"move"`
	Color    string `json:"color"`
	Captured string `json:"captured,omitempty"`
	Check    bool   `json:"check,omitempty"`
}

// ChatEntry is one chat message as stored and broadcast.
type ChatEntry struct {
	Author string    `json:"author"`
	Color  string    `json:"color"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// PlayersUpdate summarises room occupancy.
type PlayersUpdate struct {
	White          string `json:"white"`
	Black          string `json:"black"`
	SpectatorCount int    `json:"spectatorCount"`
}

// Seat occupancy labels for PlayersUpdate.
const (
	SeatConnected = "connected"
	SeatWaiting   = "waiting"
)

// DrawOffer is unicast to the opponent of the offering seat.
type DrawOffer struct {
	From    string `json:"from"`
	Message string `json:"message,omitempty"`
}

// Notice is a plain informational payload.
type Notice struct {
	Message string `json:"message"`
}

// GameEndType enumerates terminal conditions.
type GameEndType string

const (
	EndCheckmate            GameEndType = "checkmate"
	EndStalemate            GameEndType = "stalemate"
	EndRepetition           GameEndType = "repetition"
	EndInsufficientMaterial GameEndType = "insufficient_material"
	EndDraw                 GameEndType = "draw"
	EndResignation          GameEndType = "resignation"
	EndDrawAgreement        GameEndType = "draw_agreement"
)

// GameEnd reports the single terminal condition of a finished game.
// Winner is "white", "black", or empty for draws.
type GameEnd struct {
	Type    GameEndType `json:"type"`
	Winner  string      `json:"winner,omitempty"`
	Message string      `json:"message,omitempty"`
}
