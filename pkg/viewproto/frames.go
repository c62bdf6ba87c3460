// Package viewproto is the JSON frame format spoken between the client and a
// remote board front end over a websocket.
package viewproto

// Frame types.
const (
	TypeMessage = "message"
	TypeBoard   = "board"
	TypePrompt  = "prompt"
	TypeMove    = "move"
	TypeError   = "error"
)

// Frame is one websocket message in either direction. Prompt and Move frames
// carry the same Seq so a late answer to an abandoned prompt can be dropped.
type Frame struct {
	Type  string      `json:"type"`
	Seq   int64       `json:"seq,omitempty"`
	Text  string      `json:"text,omitempty"`
	Board *BoardState `json:"board,omitempty"`
	Error *ErrorFrame `json:"error,omitempty"`
}

type MaterialScore struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// CapturedPieces lists taken pieces as uppercase letters, strongest first.
type CapturedPieces struct {
	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`
}

type BoardState struct {
	GameID      string         `json:"gameId,omitempty"`
	FEN         string         `json:"fen"`
	MovesUCI    []string       `json:"movesUci"`
	MovesSAN    []string       `json:"movesSan"`
	Turn        string         `json:"turn"`
	Bottom      string         `json:"bottom"`
	LastMove    string         `json:"lastMove,omitempty"`
	OpeningCode string         `json:"openingCode,omitempty"`
	OpeningName string         `json:"openingName,omitempty"`
	Outcome     string         `json:"outcome"`
	Method      string         `json:"method,omitempty"`
	Diagram     string         `json:"diagram"`
	Material    MaterialScore  `json:"material"`
	Captured    CapturedPieces `json:"captured"`
	Lines       []string       `json:"lines,omitempty"`
}

// ErrorFrame is what a front end may send back when it cannot render a frame.
type ErrorFrame struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e ErrorFrame) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "view error"
}
