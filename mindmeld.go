// MindMeld
//
// Two players try to say the same word. Each round, both submit one word;
// the words are compared after normalization (lowercased, punctuation
// stripped). A match ends the game, otherwise the next round begins with
// both words cleared. The fun is converging: round one is "Dog" vs "Car",
// round five is the meld.
//
// Features:
// - Shareable 6-letter game codes, embedded in invite links (/path/:gameid)
// - One WebSocket endpoint; clients send intents (create/join/submit/rematch)
//   and receive per-player render models back
// - Players identified by cookie (playerID), so reloads and reconnects rejoin
// - All game state lives in a subscribable document store; the engine reacts
//   to observed changes, so either player's connection can resolve a round
// - Rematch handshake chains a fresh session onto the finished one; watchers
//   follow the chain transparently
// - Games auto-reaped after configurable idle timeout
// - In-browser QR button to share the current session, backed by go-qrcode

package main

import (
	_ "embed"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/mindmeld/docstore"
	"github.com/Seednode/mindmeld/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const gamesCollection = "games"

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "create", "join", "submit", "rematch", "leave"
	Name   string `json:"name,omitempty"`   // create / join
	GameID string `json:"gameId,omitempty"` // join
	Word   string `json:"word,omitempty"`   // submit
}

// SessionInfoMessage is sent immediately on connect so the client knows
// its identity (or that it has none yet).
type SessionInfoMessage struct {
	Type   string `json:"type"` // "session_info"
	UserID string `json:"userId,omitempty"`
}

// GameStateMessage carries the per-player render model for the session the
// client currently watches.
type GameStateMessage struct {
	Type string `json:"type"` // "game_state"
	session.View
}

// ErrorMessage reports a failed action back to the offending client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GameGoneMessage tells the client its session document disappeared
// underneath it (administrative deletion or idle reaping).
type GameGoneMessage struct {
	Type    string `json:"type"` // "game_gone"
	Message string `json:"message"`
}

type Client struct {
	conn   *websocket.Conn
	userID string

	mu     sync.Mutex
	send   chan any
	watch  *session.Watch
	closed bool
}

// trySend queues a message without blocking. A client too slow to keep up
// loses intermediate frames; the next state frame supersedes them anyway.
func (c *Client) trySend(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(err error) {
	code, message := userFacing(err)
	c.trySend(ErrorMessage{
		Type:    "error",
		Code:    code,
		Message: message,
	})
}

// stopWatch drops the current session feed, if any. Must be called before
// watching another session so a client never has two live feeds.
func (c *Client) stopWatch() {
	c.mu.Lock()
	w := c.watch
	c.watch = nil
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (c *Client) currentGameID() string {
	c.mu.Lock()
	w := c.watch
	c.mu.Unlock()
	if w == nil {
		return ""
	}
	return w.GameID()
}

func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// GameServer ties one engine and one store to the HTTP surface.
type GameServer struct {
	cfg    *Config
	store  *docstore.Store
	engine *session.Engine
}

// watchGame points the client's feed at a session. Every observed state is
// projected through the player's own view before it goes out.
func (gs *GameServer) watchGame(c *Client, gameID string) {
	c.stopWatch()

	w, err := gs.engine.Watch(gameID, c.userID, func(s *session.Session) {
		if s == nil {
			c.trySend(GameGoneMessage{
				Type:    "game_gone",
				Message: "This game no longer exists.",
			})
			return
		}
		c.trySend(GameStateMessage{
			Type: "game_state",
			View: session.NewView(s, c.userID),
		})
	})
	if err != nil {
		c.sendError(err)
		return
	}

	c.mu.Lock()
	c.watch = w
	c.mu.Unlock()
}

func (gs *GameServer) handleCreate(c *Client, msg ClientMessage) {
	gameID, err := gs.engine.Create(c.userID, msg.Name)
	if err != nil {
		c.sendError(err)
		return
	}
	logf(gs.cfg, "GAMES: Player %q created game %s", strings.TrimSpace(msg.Name), gameID)
	gs.watchGame(c, gameID)
}

func (gs *GameServer) handleJoin(c *Client, msg ClientMessage) {
	if err := gs.engine.Join(msg.GameID, c.userID, msg.Name); err != nil {
		c.sendError(err)
		return
	}
	gameID := strings.ToUpper(strings.TrimSpace(msg.GameID))
	logf(gs.cfg, "GAMES: Player %q joined game %s", strings.TrimSpace(msg.Name), gameID)
	gs.watchGame(c, gameID)
}

func (gs *GameServer) handleSubmit(c *Client, msg ClientMessage) {
	gameID := c.currentGameID()
	if gameID == "" {
		c.sendError(session.ErrNotFound)
		return
	}
	if err := gs.engine.Submit(gameID, c.userID, msg.Word); err != nil {
		c.sendError(err)
	}
}

func (gs *GameServer) handleRematch(c *Client) {
	gameID := c.currentGameID()
	if gameID == "" {
		c.sendError(session.ErrNotFound)
		return
	}
	if err := gs.engine.Rematch(gameID, c.userID); err != nil {
		c.sendError(err)
	}
}

// reaperLoop periodically removes sessions idle longer than the timeout.
// The engine never deletes games itself; this is the administrative broom,
// and watchers of a reaped game are told it is gone.
func (gs *GameServer) reaperLoop(idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	for range ticker.C {
		if reaped := gs.store.Reap(idleTimeout); reaped > 0 {
			logf(gs.cfg, "GAMES: Reaped %d idle sessions", reaped)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "mindmeld_id"

// getOrSetPlayerID hands out the opaque player identity. The cookie is set
// on page load; the websocket handler only ever reads it back.
func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func getPlayerID(r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil {
		return c.Value
	}
	return ""
}

// WebSocket handler: one connection per browser tab, any number of
// sequential games over it.
func serveWSForGame(gs *GameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		// Identity comes from the page-load cookie. A connection without
		// one still gets session_info; its actions fail recoverably until
		// the client reloads.
		userID := getPlayerID(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:   conn,
			send:   make(chan any, 64),
			userID: userID,
		}

		client.trySend(SessionInfoMessage{
			Type:   "session_info",
			UserID: userID,
		})

		go client.writePump()
		client.readPump(gs)
	}
}

func (c *Client) readPump(gs *GameServer) {
	defer func() {
		c.stopWatch()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "create":
			gs.handleCreate(c, msg)
		case "join":
			gs.handleJoin(c, msg)
		case "submit":
			gs.handleSubmit(c, msg)
		case "rematch":
			gs.handleRematch(c)
		case "leave":
			c.stopWatch()
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed mindmeld/index.html
var indexHTML []byte

//go:embed mindmeld/app.css
var mindmeldCSS []byte

//go:embed mindmeld/app.js
var mindmeldJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(mindmeldCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(mindmeldJS)
	}
}

// registerMindmeldGame sets up routes so that:
//   - $path                  → HTML client (create / join screens)
//   - $path/:gameid          → HTML client with an invite code in the URL
//   - $path/:gameid/qr       → PNG QR code for that game URL
//   - /ws/mindmeld           → WebSocket shared by all games
func registerMindmeldGame(cfg *Config, path string, mux *httprouter.Router) {
	store := docstore.NewStore()
	engine := session.NewEngine(store, gamesCollection, nil, func(format string, args ...any) {
		logf(cfg, format, args...)
	})

	gs := &GameServer{
		cfg:    cfg,
		store:  store,
		engine: engine,
	}

	if cfg.sessionTimeout > 0 {
		go gs.reaperLoop(cfg.sessionTimeout)
	}

	// Client view, with and without an invite code
	mux.GET(cfg.prefix+path, getIndexHandler(cfg))
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/mindmeld/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/mindmeld/app.js", getJsHandler(cfg))

	// Shared websocket
	mux.GET(cfg.prefix+"/ws/mindmeld", serveWSForGame(gs))

	// Per-game QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
