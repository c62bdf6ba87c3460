package lichess

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Account event types.
const (
	EventGameStart         = "gameStart"
	EventGameFinish        = "gameFinish"
	EventChallenge         = "challenge"
	EventChallengeCanceled = "challengeCanceled"
	EventChallengeDeclined = "challengeDeclined"
)

// Game stream event types.
const (
	StateGameFull     = "gameFull"
	StateGameState    = "gameState"
	StateChatLine     = "chatLine"
	StateOpponentGone = "opponentGone"
)

// EventMessage is one line of the account event stream.
type EventMessage struct {
	Type      string         `json:"type"`
	Game      *GameEventInfo `json:"game,omitempty"`
	Challenge *ChallengeInfo `json:"challenge,omitempty"`
}

type GameEventInfo struct {
	GameID   string `json:"gameId"`
	ID       string `json:"id"`
	FullID   string `json:"fullId"`
	Color    string `json:"color"`
	Status   string `json:"status"`
	Opponent struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		AILevel  int    `json:"ai"`
	} `json:"opponent"`
}

// Ref returns whichever id field the server filled.
func (g *GameEventInfo) Ref() string {
	if g == nil {
		return ""
	}
	if g.GameID != "" {
		return g.GameID
	}
	return g.ID
}

type ChallengeInfo struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	DeclineReason string `json:"declineReason"`
}

// Player is one side of a game as reported by gameFull.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Rating  int    `json:"rating"`
	AILevel int    `json:"aiLevel"`
}

func (p Player) DisplayName() string {
	switch {
	case p.Name != "" && p.Title != "":
		return p.Title + " " + p.Name
	case p.Name != "":
		return p.Name
	case p.AILevel > 0:
		return fmt.Sprintf("Stockfish level %d", p.AILevel)
	default:
		return "anonymous"
	}
}

// GameStateMessage is one line of the game stream. Full and incremental
// events both carry the complete move list from the initial position.
type GameStateMessage struct {
	Type   string
	GameID string
	Moves  []string
	Status string
	Winner string

	White *Player
	Black *Player

	ChatUser string
	ChatText string
	ChatRoom string

	Gone              bool
	ClaimWinInSeconds int
}

func (m *GameStateMessage) UnmarshalJSON(data []byte) error {
	type state struct {
		Moves  string `json:"moves"`
		Status string `json:"status"`
		Winner string `json:"winner"`
	}
	var raw struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		state
		State             *state  `json:"state"`
		White             *Player `json:"white"`
		Black             *Player `json:"black"`
		Username          string  `json:"username"`
		Text              string  `json:"text"`
		Room              string  `json:"room"`
		Gone              bool    `json:"gone"`
		ClaimWinInSeconds int     `json:"claimWinInSeconds"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st := raw.state
	if raw.State != nil {
		st = *raw.State
	}
	*m = GameStateMessage{
		Type:              raw.Type,
		GameID:            raw.ID,
		Moves:             strings.Fields(st.Moves),
		Status:            st.Status,
		Winner:            st.Winner,
		White:             raw.White,
		Black:             raw.Black,
		ChatUser:          raw.Username,
		ChatText:          raw.Text,
		ChatRoom:          raw.Room,
		Gone:              raw.Gone,
		ClaimWinInSeconds: raw.ClaimWinInSeconds,
	}
	return nil
}

// CarriesMoves reports whether the event holds a move list.
func (m GameStateMessage) CarriesMoves() bool {
	return m.Type == StateGameFull || m.Type == StateGameState
}

// Finished reports a terminal server status.
func (m GameStateMessage) Finished() bool {
	return StatusFinished(m.Status)
}

// StatusFinished reports whether a Lichess game status ends the game.
func StatusFinished(status string) bool {
	switch status {
	case "", "created", "started":
		return false
	default:
		return true
	}
}
