package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Seednode/mindmeld/docstore"
)

// How many fresh ids to try before giving up on session creation.
const createAttempts = 8

// Engine owns every transition of the game state machine. All game state
// lives in the document store; the engine holds no per-session state of its
// own, so any number of clients (or tests) can drive the same session.
type Engine struct {
	store      *docstore.Store
	collection string
	ids        *IDGenerator
	logf       func(format string, args ...any)
}

// NewEngine wires an engine to a store. ids may be nil for the default
// crypto/rand generator; logf may be nil to discard reaction diagnostics.
func NewEngine(store *docstore.Store, collection string, ids *IDGenerator, logf func(string, ...any)) *Engine {
	if ids == nil {
		ids = NewIDGenerator(nil)
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Engine{
		store:      store,
		collection: collection,
		ids:        ids,
		logf:       logf,
	}
}

// Create persists a new waiting session with the creator in slot 1 and
// returns its id, retrying on the (unlikely) id collision.
func (e *Engine) Create(userID, name string) (string, error) {
	if userID == "" {
		return "", ErrNotAuthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: player name required", ErrValidation)
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := e.ids.Generate()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStore, err)
		}
		err = e.store.Create(e.collection, id, newSessionDoc(userID, name))
		if errors.Is(err, docstore.ErrExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStore, err)
		}
		return id, nil
	}

	return "", fmt.Errorf("%w: could not allocate a game id", ErrStore)
}

// Join adds the user to a waiting session as slot 2 and starts play.
// Joining a session you already belong to is a no-op, so reconnects and
// page reloads are safe. A third identity is turned away.
//
// The read and the write here are not one atomic step: two strangers racing
// to join the same waiting session can in principle both pass the length
// check. The store's per-call update is atomic, so the loser's write still
// leaves a well-formed document; the session simply keeps the last writer.
func (e *Engine) Join(gameID, userID, name string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: player name required", ErrValidation)
	}
	gameID = strings.ToUpper(strings.TrimSpace(gameID))
	if gameID == "" {
		return fmt.Errorf("%w: game id required", ErrValidation)
	}

	s, err := e.load(gameID)
	if err != nil {
		return err
	}
	if s.Member(userID) {
		return nil
	}
	if len(s.PlayerIDs) >= 2 {
		return ErrGameFull
	}

	ids := append(append([]string{}, s.PlayerIDs...), userID)
	err = e.store.Update(e.collection, gameID, map[string]any{
		"status":             string(StatusPlaying),
		"players." + userID: playerDoc(Player{Name: name, Num: 2}),
		"playerIds":          ids,
	})
	if err != nil {
		return e.wrapStore(err)
	}
	return nil
}

// Submit records the player's word for the current round, raw. Comparison
// happens at resolution time against the normalized forms.
func (e *Engine) Submit(gameID, userID, rawWord string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	word := strings.TrimSpace(rawWord)
	if word == "" {
		return fmt.Errorf("%w: word required", ErrValidation)
	}

	s, err := e.load(gameID)
	if err != nil {
		return err
	}
	if !s.Member(userID) {
		return fmt.Errorf("%w: not a player in this game", ErrValidation)
	}
	if s.Status != StatusPlaying {
		return fmt.Errorf("%w: game is not in play", ErrValidation)
	}

	err = e.store.Update(e.collection, gameID, map[string]any{
		"players." + userID + ".lastWord": word,
	})
	if err != nil {
		return e.wrapStore(err)
	}
	return nil
}

// Rematch marks the player as wanting another game. Once both players have
// opted in, the slot-1 player's watch chains a fresh session.
func (e *Engine) Rematch(gameID, userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}

	s, err := e.load(gameID)
	if err != nil {
		return err
	}
	if !s.Member(userID) {
		return fmt.Errorf("%w: not a player in this game", ErrValidation)
	}
	if s.Status != StatusGameOver {
		return fmt.Errorf("%w: game is not over", ErrValidation)
	}
	if s.Players[userID].WantsRematch {
		return nil
	}

	err = e.store.Update(e.collection, gameID, map[string]any{
		"players." + userID + ".wantsRematch": true,
	})
	if err != nil {
		return e.wrapStore(err)
	}
	return nil
}

func (e *Engine) load(gameID string) (*Session, error) {
	doc, ok := e.store.Get(e.collection, gameID)
	if !ok {
		return nil, ErrNotFound
	}
	s, err := parseSession(gameID, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return s, nil
}

func (e *Engine) wrapStore(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}

// ---- reactive resolution ----
//
// Round resolution and rematch chaining are not user actions; they are
// derived reactions to observed document changes, run by whichever watches
// are live. Both players' watches may react to the same snapshot, so each
// reaction is a pure decision plus a conditional write: the store applies
// the first write and discards the duplicate.

// writeEffect is a decided-but-not-yet-applied store update.
type writeEffect struct {
	fields map[string]any
	expect map[string]any
}

// decideRound computes the round outcome once both words of a playing
// session are in. The returned effect is conditioned on the observed round
// so a stale resolver can never double-advance.
func decideRound(s *Session) (writeEffect, bool) {
	if s.Status != StatusPlaying || !s.bothSubmitted() {
		return writeEffect{}, false
	}

	word1 := *s.Players[s.PlayerIDs[0]].LastWord
	word2 := *s.Players[s.PlayerIDs[1]].LastWord
	match := Normalize(word1) == Normalize(word2)

	history := historyDoc(append(append([]RoundResult{}, s.History...), RoundResult{
		Round: s.Round,
		Word1: word1,
		Word2: word2,
		Match: match,
	}))

	expect := map[string]any{
		"status": string(StatusPlaying),
		"round":  s.Round,
	}

	if match {
		return writeEffect{
			fields: map[string]any{
				"status":  string(StatusGameOver),
				"history": history,
			},
			expect: expect,
		}, true
	}

	return writeEffect{
		fields: map[string]any{
			"round":   s.Round + 1,
			"history": history,
			"players." + s.PlayerIDs[0] + ".lastWord": nil,
			"players." + s.PlayerIDs[1] + ".lastWord": nil,
		},
		expect: expect,
	}, true
}

// decideRematch reports whether the viewing player should chain a rematch
// session. Only the slot-1 player acts, collapsing the two-writer race to
// one writer in the common case; the conditional nextGameId write keeps a
// duplicate (same player, two tabs) from corrupting the chain.
func decideRematch(s *Session, viewerID string) bool {
	if s.Status != StatusGameOver || s.NextGameID != "" {
		return false
	}
	if !s.bothWantRematch() {
		return false
	}
	return len(s.PlayerIDs) > 0 && s.PlayerIDs[0] == viewerID
}

// react runs the derived reactions for one observed snapshot. Failures are
// logged and swallowed; the watch must keep processing later changes.
func (e *Engine) react(s *Session, viewerID string) {
	if effect, ok := decideRound(s); ok {
		applied, err := e.store.UpdateIf(e.collection, s.ID, effect.fields, effect.expect)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			e.logf("GAMES: Round resolution failed for %s: %v", s.ID, err)
		} else if !applied {
			e.logf("GAMES: Round %d of %s already resolved elsewhere", s.Round, s.ID)
		}
	}

	if decideRematch(s, viewerID) {
		e.chainRematch(s)
	}
}

// chainRematch creates the successor session, then points the finished one
// at it. If another writer got there first the old session keeps its
// original pointer and our successor is abandoned unreferenced.
func (e *Engine) chainRematch(old *Session) {
	var newID string
	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := e.ids.Generate()
		if err != nil {
			e.logf("GAMES: Rematch id generation failed for %s: %v", old.ID, err)
			return
		}
		err = e.store.Create(e.collection, id, successorDoc(old))
		if errors.Is(err, docstore.ErrExists) {
			continue
		}
		if err != nil {
			e.logf("GAMES: Rematch creation failed for %s: %v", old.ID, err)
			return
		}
		newID = id
		break
	}
	if newID == "" {
		e.logf("GAMES: Rematch for %s could not allocate a game id", old.ID)
		return
	}

	applied, err := e.store.UpdateIf(e.collection, old.ID,
		map[string]any{"nextGameId": newID},
		map[string]any{"nextGameId": nil, "status": string(StatusGameOver)},
	)
	if err != nil {
		e.logf("GAMES: Rematch chaining failed for %s: %v", old.ID, err)
		return
	}
	if !applied {
		e.logf("GAMES: Rematch for %s already chained; dropping %s", old.ID, newID)
		return
	}
	e.logf("GAMES: Rematch chained %s -> %s", old.ID, newID)
}

// ---- watches ----

// Watch is a live feed of one logical game. When the watched session gains
// a nextGameId the watch silently follows the chain; the callback only ever
// sees the current session, and sees nil exactly once if the document is
// deleted out from under it.
type Watch struct {
	engine *Engine
	userID string
	fn     func(*Session)

	mu      sync.Mutex
	gameID  string
	cancel  func()
	stopped bool
}

// Watch subscribes fn to the session's changes. fn is called with the
// current state immediately, then after every committed change, in write
// order. Callers must Stop the watch before opening another for the same
// connection.
func (e *Engine) Watch(gameID, userID string, fn func(*Session)) (*Watch, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	gameID = strings.ToUpper(strings.TrimSpace(gameID))
	if gameID == "" {
		return nil, fmt.Errorf("%w: game id required", ErrValidation)
	}

	w := &Watch{
		engine: e,
		userID: userID,
		fn:     fn,
	}
	w.attach(gameID)
	return w, nil
}

// GameID returns the id of the session the watch currently follows, which
// advances as rematches chain.
func (w *Watch) GameID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gameID
}

// Stop cancels the watch. No callbacks are delivered after Stop returns
// from the caller's point of view of new changes; a callback already in
// flight may still complete.
func (w *Watch) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *Watch) attach(gameID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	// Always drop the old subscription before opening the next one, so a
	// chained game never delivers through two feeds at once.
	if w.cancel != nil {
		w.cancel()
	}
	w.gameID = gameID
	e := w.engine
	w.cancel = e.store.Subscribe(e.collection, gameID, func(doc docstore.Document, ok bool) {
		w.observe(gameID, doc, ok)
	})
}

func (w *Watch) observe(gameID string, doc docstore.Document, ok bool) {
	if !ok {
		w.fn(nil)
		return
	}

	s, err := parseSession(gameID, doc)
	if err != nil {
		w.engine.logf("GAMES: Dropping malformed update for %s: %v", gameID, err)
		return
	}

	// A chained session is superseded: follow the pointer without letting
	// the stale document reach the caller.
	if s.NextGameID != "" {
		w.attach(s.NextGameID)
		return
	}

	w.fn(s)
	w.engine.react(s, w.userID)
}
