/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Jeopardy board
//
// Each game is one Board of NumCategories columns and NumCluesPerCategory
// rows, built from the trivia API when the game is created. Every cell starts
// hidden; clicking it shows the question, clicking again shows the answer,
// and further clicks are ignored.
//
// Features:
// - One board per game ID: /path/:gameid, /path/:gameid/ws
// - Server-rendered grid, so a reload shows the current state
// - Reveals are serialized by the game's hub and pushed to every connected client
// - Any number of screens can follow the same board (QR code at /path/:gameid/qr)
// - Games auto-reaped after configurable idle timeout
// - Restart builds a fresh board under a new game ID

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const gameIDLength = 8

var ErrNoSuchGame = errors.New("no such game")

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "reveal"
	Category *int   `json:"category,omitempty"` // column of the clicked cell
	Clue     *int   `json:"clue,omitempty"`     // row of the clicked cell
}

// CellMessage carries the current display of one cell.
type CellMessage struct {
	Type     string `json:"type"` // "cell"
	Category int    `json:"category"`
	Clue     int    `json:"clue"`
	Text     string `json:"text"`
	Showing  string `json:"showing"` // "", "question" or "answer"
}

// BoardStateMessage is sent on connect, so late joiners see every revealed cell.
type BoardStateMessage struct {
	Type      string        `json:"type"` // "board_state"
	Titles    []string      `json:"titles"`
	Cells     []CellMessage `json:"cells"`
	CreatedAt time.Time     `json:"created_at"`
}

func newCellMessage(c Cell) CellMessage {
	return CellMessage{
		Type:     "cell",
		Category: c.Category,
		Clue:     c.Clue,
		Text:     c.Text,
		Showing:  c.Showing.String(),
	}
}

type Client struct {
	conn *websocket.Conn
	send chan any
}

type revealRequest struct {
	client *Client
	coord  Coord
}

type Hub struct {
	id      string
	board   *Board
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	reveals  chan revealRequest
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	closed     bool
}

func newHub(gameID string, board *Board) *Hub {
	now := time.Now()
	return &Hub{
		id:         gameID,
		board:      board,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		reveals:    make(chan revealRequest),
		done:       make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.closed {
				close(c.send)
				h.mu.Unlock()
				continue
			}
			h.lastActive = time.Now()
			h.clients[c] = true
			c.send <- h.boardStateLocked()
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case rr := <-h.reveals:
			h.handleReveal(cfg, rr)
		}
	}
}

// handleReveal advances one clue and pushes the new display to every client.
// Clicks on answered clues and on coordinates outside the board are dropped.
func (h *Hub) handleReveal(cfg *Config, rr revealRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	cell, err := h.board.Reveal(rr.coord)
	if err != nil {
		logf(cfg, "GAMES: Ignored reveal in %s: %v", h.id, err)
		return
	}
	if !cell.Changed {
		return
	}

	logf(cfg, "GAMES: Revealed %s of %s at %s", cell.Showing, h.id, cell.Coord)

	h.broadcastLocked(newCellMessage(cell))
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) boardStateLocked() BoardStateMessage {
	msg := BoardStateMessage{
		Type:      "board_state",
		Titles:    h.board.Titles(),
		CreatedAt: h.createdAt,
	}

	for _, row := range h.board.Rows() {
		for _, cell := range row {
			msg.Cells = append(msg.Cells, newCellMessage(cell))
		}
	}

	return msg
}

// snapshot returns the board state under the read lock.
func (h *Hub) snapshot() BoardStateMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.boardStateLocked()
}

func (h *Hub) page(cfg *Config, path string) boardPage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return boardPage{
		Prefix: cfg.prefix,
		Path:   path,
		GameID: h.id,
		Titles: h.board.Titles(),
		Rows:   h.board.Rows(),
	}
}

// closeAll stops the run loop and disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.stopOnce.Do(func() {
		close(h.done)
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// GameManager holds a set of hubs keyed by game ID, so each $path/$gameid
// is its own isolated board.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
	source      CategorySource
}

func newGameManager(ctx context.Context, source CategorySource, idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
		source:      source,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop(ctx)
	}
	return gm
}

// newGame builds a board from the trivia source and starts a hub for it.
func (gm *GameManager) newGame(ctx context.Context, cfg *Config) (*Hub, error) {
	board, err := BuildBoard(ctx, gm.source, BuildOptions{
		Pool:        cfg.categoryPool,
		MaxAttempts: cfg.maxAttempts,
		Logf: func(format string, args ...any) {
			logf(cfg, "FETCH: "+format, args...)
		},
	})
	if err != nil {
		return nil, err
	}

	gm.mu.Lock()
	id := gm.newGameIDLocked()
	hub := newHub(id, board)
	gm.hubs[id] = hub
	gm.mu.Unlock()

	go hub.run(cfg)

	return hub, nil
}

func (gm *GameManager) getHub(gameID string) (*Hub, error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	hub, ok := gm.hubs[gameID]
	if !ok {
		return nil, ErrNoSuchGame
	}

	return hub, nil
}

func randomGameID(n int) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const max = byte(255 - (256 % len(letters)))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(err)
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == n {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

// newGameIDLocked generates a crypto-random game ID that doesn't collide
// with existing games. gm.mu must be held.
func (gm *GameManager) newGameIDLocked() string {
	for {
		id := randomGameID(gameIDLength)
		if _, exists := gm.hubs[id]; !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than idleTimeout.
func (gm *GameManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gm.reap(time.Now().Add(-gm.idleTimeout))
		}
	}
}

func (gm *GameManager) reap(cutoff time.Time) int {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	reaped := 0
	for id, hub := range gm.hubs {
		hub.mu.RLock()
		last := hub.lastActive
		hub.mu.RUnlock()

		if last.Before(cutoff) {
			delete(gm.hubs, id)
			go hub.closeAll()
			reaped++
		}
	}

	return reaped
}

func notFound(cfg *Config, w http.ResponseWriter, path string) {
	servePage(cfg, w, http.StatusNotFound, "Game Not Found",
		"That game does not exist or has expired. Click to start a new one.", cfg.prefix+path)
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub, err := gm.getHub(ps.ByName("gameid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: %s joined %s", realIP(r), hub.id)

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "reveal":
			if msg.Category == nil || msg.Clue == nil {
				continue
			}

			select {
			case h.reveals <- revealRequest{
				client: c,
				coord:  Coord{Category: *msg.Category, Clue: *msg.Clue},
			}:
			case <-h.done:
				return
			}
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
func qrHandler(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := gm.getHub(ps.ByName("gameid")); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
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
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

func serveBoard(cfg *Config, path string, gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		hub, err := gm.getHub(ps.ByName("gameid"))
		if err != nil {
			notFound(cfg, w, path)
			return
		}

		data, err := renderBoard(hub.page(cfg, path))
		if err != nil {
			errs <- err
			servePage(cfg, w, http.StatusInternalServerError, "Server Error", "An error has occurred. Please try again.", cfg.prefix+path)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Board %s (%s) to %s in %s",
			hub.id,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveBoardJSON(cfg *Config, gm *GameManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		hub, err := gm.getHub(ps.ByName("gameid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		if err := json.NewEncoder(w).Encode(hub.snapshot()); err != nil {
			errs <- err
		}
	}
}

// redirectNewGame handles GET /path by building a new board and redirecting
// to /path/:gameid. Failed builds render an error page that links back here.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		hub, err := gm.newGame(r.Context(), cfg)
		if err != nil {
			logf(cfg, "ERROR: Building board for %s failed: %v", realIP(r), err)
			servePage(cfg, w, buildErrorStatus(err), "Board Unavailable",
				"Could not load trivia data ("+err.Error()+"). Click to try again.", cfg.prefix+path)
			return
		}

		logf(cfg, "GAMES: Created game %s%s/%s in %s",
			cfg.prefix, path, hub.id, time.Since(startTime).Round(time.Millisecond))

		http.Redirect(w, r, cfg.prefix+path+"/"+hub.id, http.StatusSeeOther)
	}
}

// registerJeopardyGame sets up routes so that:
//   - $path                     → builds a new board and redirects to it
//   - $path/:gameid             → HTML board
//   - $path/:gameid/ws          → WebSocket for that board
//   - $path/:gameid/qr          → PNG QR code for that board URL
//   - $path/:gameid/board.json  → current board state
func registerJeopardyGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, source CategorySource, errs chan<- error) *GameManager {
	gm := newGameManager(ctx, source, cfg.sessionTimeout)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	mux.GET(cfg.prefix+path+"/:gameid", serveBoard(cfg, path, gm, errs))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler(cfg, gm))
	mux.GET(cfg.prefix+path+"/:gameid/board.json", serveBoardJSON(cfg, gm, errs))

	mux.GET(cfg.prefix+"/assets/jeopardy/app.css", serveAsset(cfg, errs, "app.css", "text/css; charset=utf-8"))
	mux.GET(cfg.prefix+"/assets/jeopardy/app.js", serveAsset(cfg, errs, "app.js", "text/javascript; charset=utf-8"))

	return gm
}
