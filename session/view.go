package session

// PlayerView is one player's slot as shown to a particular viewer. The
// opponent's word stays hidden until both words for the round are in;
// before that, Submitted is all the viewer learns.
type PlayerView struct {
	Name         string `json:"name"`
	Word         string `json:"word,omitempty"`
	Submitted    bool   `json:"submitted"`
	WantsRematch bool   `json:"wantsRematch"`
	You          bool   `json:"you"`
}

// View is the render model handed to the presentation layer: everything a
// client needs to draw one session from one player's perspective, and
// nothing about the chaining mechanics underneath.
type View struct {
	GameID      string        `json:"gameId"`
	Status      Status        `json:"status"`
	Round       int           `json:"round"`
	Players     []PlayerView  `json:"players"`
	History     []RoundResult `json:"history"`
	MatchedWord string        `json:"matchedWord,omitempty"`
}

// NewView projects a session for one viewer. Players come out in slot
// order; history comes out newest first, matching display order.
func NewView(s *Session, viewerID string) View {
	v := View{
		GameID: s.ID,
		Status: s.Status,
		Round:  s.Round,
	}

	reveal := s.bothSubmitted() || s.Status == StatusGameOver

	for _, id := range s.PlayerIDs {
		p := s.Players[id]
		pv := PlayerView{
			Name:         p.Name,
			Submitted:    p.LastWord != nil,
			WantsRematch: p.WantsRematch,
			You:          id == viewerID,
		}
		if p.LastWord != nil && (reveal || pv.You) {
			pv.Word = *p.LastWord
		}
		v.Players = append(v.Players, pv)
	}

	for i := len(s.History) - 1; i >= 0; i-- {
		v.History = append(v.History, s.History[i])
	}

	if s.Status == StatusGameOver && len(s.History) > 0 {
		if last := s.History[len(s.History)-1]; last.Match {
			v.MatchedWord = last.Word1
		}
	}

	return v
}
