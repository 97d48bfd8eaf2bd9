package protocol

// CommandType identifies a client-to-server message.
type CommandType string

const (
	CmdJoinRoom      CommandType = "joinRoom"
	CmdMove          CommandType = "move"
	CmdChatMessage   CommandType = "chatMessage"
	CmdResign        CommandType = "resign"
	CmdOfferDraw     CommandType = "offerDraw"
	CmdRespondToDraw CommandType = "respondToDraw"
	CmdResetGame     CommandType = "resetGame"
	CmdReconnect     CommandType = "reconnect"
)

// Command is the flat client envelope; unused fields stay empty per type.
type Command struct {
	Type CommandType `json:"type"`

	// joinRoom
	RoomID        string `json:"roomId,omitempty"`
	PreferredRole string `json:"preferredRole,omitempty"`

	// move
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`

	// chatMessage
	Message string `json:"message,omitempty"`

	// respondToDraw
	Accepted *bool `json:"accepted,omitempty"`

	// reconnect
	Token string `json:"token,omitempty"`
}
