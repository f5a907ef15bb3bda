// Package session implements the MindMeld game: a shared session document
// that two players mutate through a document store, resolved round by round
// until both players submit the same word.
//
// Rules:
// - The first player creates a session and waits; the second joins and play begins
// - Each round both players submit one word; words are compared after normalization
// - Matching words end the game; otherwise the round repeats with cleared words
// - After a game ends both players may opt into a rematch, which chains a
//   fresh session onto the old one via a forward pointer
package session

import (
	"fmt"

	"github.com/Seednode/mindmeld/docstore"
)

// Status is the lifecycle phase of a session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusGameOver Status = "gameover"
)

// Player is one participant's slice of the session document. Fields other
// than Name are only ever written by that player's own client, except for
// the round-resolution reset of LastWord.
type Player struct {
	Name         string
	LastWord     *string
	Num          int
	WantsRematch bool
}

// RoundResult records one completed round.
type RoundResult struct {
	Round int    `json:"round"`
	Word1 string `json:"word1"`
	Word2 string `json:"word2"`
	Match bool   `json:"match"`
}

// Session is the parsed form of one game document.
type Session struct {
	ID         string
	Status     Status
	Players    map[string]Player
	PlayerIDs  []string
	Round      int
	History    []RoundResult
	NextGameID string
}

// Member reports whether the given user belongs to this session.
func (s *Session) Member(userID string) bool {
	for _, id := range s.PlayerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// OpponentID returns the other player's id, or "" while waiting.
func (s *Session) OpponentID(userID string) string {
	for _, id := range s.PlayerIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

func (s *Session) bothSubmitted() bool {
	if len(s.PlayerIDs) != 2 {
		return false
	}
	for _, id := range s.PlayerIDs {
		if s.Players[id].LastWord == nil {
			return false
		}
	}
	return true
}

func (s *Session) bothWantRematch() bool {
	if len(s.PlayerIDs) != 2 {
		return false
	}
	for _, id := range s.PlayerIDs {
		if !s.Players[id].WantsRematch {
			return false
		}
	}
	return true
}

// ---- document mapping ----
//
// The wire schema matches the stored game documents:
//
//	status:     "waiting" | "playing" | "gameover"
//	players:    { <userId>: { name, lastWord, playerNum, wantsRematch } }
//	playerIds:  [ <userId>, ... ]
//	round:      1-based round counter
//	history:    [ { round, word1, word2, match }, ... ]
//	nextGameId: forward pointer, present once a rematch session exists

func playerDoc(p Player) map[string]any {
	var word any
	if p.LastWord != nil {
		word = *p.LastWord
	}
	return map[string]any{
		"name":         p.Name,
		"lastWord":     word,
		"playerNum":    p.Num,
		"wantsRematch": p.WantsRematch,
	}
}

func historyDoc(history []RoundResult) []any {
	out := make([]any, 0, len(history))
	for _, h := range history {
		out = append(out, map[string]any{
			"round": h.Round,
			"word1": h.Word1,
			"word2": h.Word2,
			"match": h.Match,
		})
	}
	return out
}

func newSessionDoc(userID, name string) docstore.Document {
	return docstore.Document{
		"status": string(StatusWaiting),
		"players": map[string]any{
			userID: playerDoc(Player{Name: name, Num: 1}),
		},
		"playerIds": []string{userID},
		"round":     1,
		"history":   []any{},
	}
}

// successorDoc builds the document for a rematch session: same players and
// slots, cleared words and rematch flags, round one, empty history.
func successorDoc(old *Session) docstore.Document {
	players := make(map[string]any, len(old.Players))
	for id, p := range old.Players {
		players[id] = playerDoc(Player{Name: p.Name, Num: p.Num})
	}
	ids := make([]string, len(old.PlayerIDs))
	copy(ids, old.PlayerIDs)

	return docstore.Document{
		"status":    string(StatusPlaying),
		"players":   players,
		"playerIds": ids,
		"round":     1,
		"history":   []any{},
	}
}

func parseSession(id string, doc docstore.Document) (*Session, error) {
	s := &Session{
		ID:      id,
		Players: make(map[string]Player),
		Round:   1,
	}

	status, ok := doc["status"].(string)
	if !ok {
		return nil, fmt.Errorf("game %s: missing status", id)
	}
	s.Status = Status(status)

	ids, ok := doc["playerIds"].([]string)
	if !ok {
		return nil, fmt.Errorf("game %s: missing playerIds", id)
	}
	s.PlayerIDs = ids

	if round, ok := doc["round"].(int); ok {
		s.Round = round
	}
	if next, ok := doc["nextGameId"].(string); ok {
		s.NextGameID = next
	}

	players, _ := doc["players"].(map[string]any)
	for uid, raw := range players {
		fields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		p := Player{}
		p.Name, _ = fields["name"].(string)
		p.Num, _ = fields["playerNum"].(int)
		p.WantsRematch, _ = fields["wantsRematch"].(bool)
		if word, ok := fields["lastWord"].(string); ok {
			p.LastWord = &word
		}
		s.Players[uid] = p
	}

	if history, ok := doc["history"].([]any); ok {
		for _, raw := range history {
			fields, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			h := RoundResult{}
			h.Round, _ = fields["round"].(int)
			h.Word1, _ = fields["word1"].(string)
			h.Word2, _ = fields["word2"].(string)
			h.Match, _ = fields["match"].(bool)
			s.History = append(s.History, h)
		}
	}

	return s, nil
}
