/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/spyfall/games/spyfall"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	maxBodyBytes = 64 << 10
	maxWSMessage = 4 << 10
	qrSize       = 320
)

var (
	errBadRequest  = errors.New("bad request")
	errRateLimited = errors.New("rate limited")
)

// game is the backend behind the spyfall routes.
type game struct {
	ctx     context.Context
	reg     *spyfall.Registry
	catalog *spyfall.Catalog
	closers []io.Closer
	pingers []pinger

	mu       sync.Mutex
	presence map[seat]*attendance
}

// seat identifies one player in one room.
type seat struct {
	code string
	id   int
}

type attendance struct {
	sockets int
	gen     uint64
}

type pinger interface {
	Ping(context.Context) error
}

func newGame(ctx context.Context, cfg *Config) (*game, error) {
	g := &game{ctx: ctx, catalog: spyfall.DefaultCatalog(), presence: make(map[seat]*attendance)}

	if cfg.locations != "" {
		c, err := spyfall.LoadCatalog(cfg.locations)
		if err != nil {
			return nil, err
		}
		g.catalog = c
	}

	policy, err := spyfall.ParseHostPolicy(cfg.hostPolicy)
	if err != nil {
		return nil, err
	}

	opts := []spyfall.Option{
		spyfall.WithCatalog(g.catalog),
		spyfall.WithLogger(cfg.log),
		spyfall.WithHostPolicy(policy),
		spyfall.WithCodeLength(cfg.codeLength),
		spyfall.WithRoundDuration(cfg.roundDuration()),
	}

	if !g.catalog.HasPack(spyfall.DefaultPack) {
		opts = append(opts, spyfall.WithDefaultPack(g.catalog.Packs()[0]))
	}

	if strings.EqualFold(cfg.store, "redis") {
		store := spyfall.NewRedisStore(spyfall.RedisOptions{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
			TTL:      cfg.sessionTimeout,
		})

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = store.Close()

			return nil, err
		}

		g.closers = append(g.closers, store)
		g.pingers = append(g.pingers, store)
		opts = append(opts, spyfall.WithStore(store))

		logf(cfg, "START: Keeping rooms in redis at %s", cfg.redisAddr)
	}

	if strings.EqualFold(cfg.broker, "nats") {
		bus, err := spyfall.NewNATSBroadcaster(spyfall.NATSOptions{
			URL:           cfg.natsURL,
			SubjectPrefix: cfg.natsSubjectPrefix,
			Buffer:        cfg.subscriberBuffer,
			MaxReconnects: cfg.natsMaxReconnects,
			Logger:        cfg.log,
		})
		if err != nil {
			g.close()

			return nil, err
		}

		g.closers = append(g.closers, bus)
		g.pingers = append(g.pingers, bus)
		opts = append(opts, spyfall.WithBroadcaster(bus))

		logf(cfg, "START: Publishing room events to %s", cfg.natsURL)
	} else {
		hub := spyfall.NewHub(cfg.subscriberBuffer)

		g.closers = append(g.closers, hub)
		opts = append(opts, spyfall.WithBroadcaster(hub))
	}

	g.reg, err = spyfall.NewRegistry(opts...)
	if err != nil {
		g.close()

		return nil, err
	}

	reaper := &spyfall.Reaper{
		Registry:    g.reg,
		IdleTimeout: cfg.sessionTimeout,
		RoundSweep:  cfg.roundSweep,
		RoundGrace:  cfg.roundGrace,
	}
	go reaper.Run(ctx)

	return g, nil
}

// healthy checks the external backends, if any.
func (g *game) healthy(ctx context.Context) error {
	for _, p := range g.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}

	return nil
}

// connect records an open player socket.
func (g *game) connect(code string, id int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := seat{code, id}
	a, ok := g.presence[k]
	if !ok {
		a = &attendance{}
		g.presence[k] = a
	}
	a.sockets++
	a.gen++
}

// disconnect records a closed player socket. Once the player has had no
// socket for d, they are removed from the room.
func (g *game) disconnect(cfg *Config, code string, id int, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := seat{code, id}
	a, ok := g.presence[k]
	if !ok {
		return
	}
	a.sockets--
	a.gen++

	if a.sockets > 0 {
		return
	}

	if d <= 0 {
		delete(g.presence, k)

		return
	}

	go g.scheduleRemoval(cfg, k, a.gen, d)
}

// scheduleRemoval waits for d, and if the player has not reconnected in the
// meantime, removes them from the room.
func (g *game) scheduleRemoval(cfg *Config, k seat, gen uint64, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-g.ctx.Done():
		return
	case <-t.C:
	}

	g.mu.Lock()
	a, ok := g.presence[k]
	if !ok || a.gen != gen || a.sockets > 0 {
		g.mu.Unlock()

		return
	}
	delete(g.presence, k)
	g.mu.Unlock()

	_, err := g.reg.RemovePlayer(g.ctx, k.code, k.id)
	switch {
	case err == nil:
		logf(cfg, "GAMES: Removed disconnected player %d from room %s", k.id, k.code)
	case errors.Is(err, spyfall.ErrRoomNotFound), errors.Is(err, spyfall.ErrUnknownPlayer):
	default:
		cfg.log.Warn().Err(err).Str("room", k.code).Int("player", k.id).Msg("GAMES: removing disconnected player failed")
	}
}

func (g *game) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		_ = g.closers[i].Close()
	}
	g.closers = nil
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type okResponse struct {
	Success bool `json:"success"`
}

type stateResponse struct {
	Success bool          `json:"success"`
	State   *spyfall.Room `json:"state"`
}

type createResponse struct {
	Success  bool          `json:"success"`
	RoomCode string        `json:"roomCode"`
	State    *spyfall.Room `json:"state"`
}

type leaveResponse struct {
	Success bool            `json:"success"`
	Deleted bool            `json:"deleted"`
	NewHost *spyfall.Player `json:"newHost"`
}

type packListing struct {
	Name      string             `json:"name"`
	Locations []spyfall.Location `json:"locations"`
}

type locationsResponse struct {
	Success bool          `json:"success"`
	Packs   []packListing `json:"packs"`
}

type createRoomRequest struct {
	HostPlayer *spyfall.Player `json:"hostPlayer"`
	Pack       string          `json:"pack"`
}

type addPlayerRequest struct {
	Player *spyfall.Player `json:"player"`
}

type startRequest struct {
	PlayerID             *int   `json:"playerId"`
	LocationID           string `json:"locationId"`
	RoundDurationMinutes int    `json:"roundDurationMinutes"`
}

type voteRequest struct {
	VoterID   *int `json:"voterId"`
	SuspectID *int `json:"suspectId"`
}

type guessRequest struct {
	PlayerID   *int   `json:"playerId"`
	LocationID string `json:"locationId"`
}

type playerRequest struct {
	PlayerID *int `json:"playerId"`
}

type notifyRequest struct {
	RoomCode string          `json:"roomCode"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", errBadRequest, field)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "BadRequest"
	case errors.Is(err, errRateLimited):
		return "RateLimited"
	default:
		return spyfall.ErrorCode(err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, spyfall.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, spyfall.ErrInvalidPhase),
		errors.Is(err, spyfall.ErrRoundNotExpired):
		return http.StatusConflict
	case errors.Is(err, spyfall.ErrInsufficientPlayers):
		return http.StatusUnprocessableEntity
	case errors.Is(err, spyfall.ErrNotHost),
		errors.Is(err, spyfall.ErrNotSpy):
		return http.StatusForbidden
	case errors.Is(err, spyfall.ErrConnectionFailure),
		errors.Is(err, spyfall.ErrCodeSpaceExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errBadRequest),
		errors.Is(err, spyfall.ErrInvalidVote),
		errors.Is(err, spyfall.ErrUnknownPlayer),
		errors.Is(err, spyfall.ErrInvalidEvent),
		errors.Is(err, spyfall.ErrUnknownLocation),
		errors.Is(err, spyfall.ErrInvalidPlayer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	data, err := json.Marshal(v)
	if err != nil {
		errs <- err

		status = http.StatusInternalServerError
		data = []byte(`{"success":false,"error":"ServerError"}`)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		errs <- err
	}
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error, errs chan<- error) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError {
		cfg.log.Error().Err(err).Str("path", r.URL.Path).Msg("GAMES: request failed")
	} else {
		logf(cfg, "GAMES: %s %s from %s rejected: %v", r.Method, r.URL.Path, realIP(r), err)
	}

	writeJSON(cfg, w, status, errorResponse{Error: errorCode(err)}, errs)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

// roomAction decodes a T from the request body, runs fn against the room
// named in the path and answers with the updated state.
func roomAction[T any](cfg *Config, name string, errs chan<- error, fn func(context.Context, string, T) (*spyfall.Room, error)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		var req T
		if err := decodeBody(w, r, &req); err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		room, err := fn(r.Context(), p.ByName("code"), req)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, http.StatusOK, stateResponse{Success: true, State: room}, errs)

		logf(cfg, "GAMES: %s in room %s for %s in %s", name, room.Code, realIP(r), elapsed(startTime))
	}
}

func serveCreateRoom(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req createRoomRequest
		err := decodeBody(w, r, &req)
		if err == nil && req.HostPlayer == nil {
			err = missing("hostPlayer")
		}
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		room, err := g.reg.CreateRoom(r.Context(), *req.HostPlayer, req.Pack)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, http.StatusCreated, createResponse{Success: true, RoomCode: room.Code, State: room}, errs)

		logf(cfg, "GAMES: Created room %s (%s) for %s in %s", room.Code, room.Pack, realIP(r), elapsed(startTime))
	}
}

func serveRoom(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		room, err := g.reg.GetRoom(r.Context(), p.ByName("code"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, http.StatusOK, stateResponse{Success: true, State: room}, errs)
	}
}

func serveRemovePlayer(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		id, err := strconv.Atoi(p.ByName("id"))
		if err != nil {
			writeError(cfg, w, r, fmt.Errorf("%w: player id %q", errBadRequest, p.ByName("id")), errs)

			return
		}

		res, err := g.reg.RemovePlayer(r.Context(), p.ByName("code"), id)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, http.StatusOK, leaveResponse{Success: true, Deleted: res.Deleted, NewHost: res.NewHost}, errs)

		logf(cfg, "GAMES: Player %d left room %s (deleted: %t) in %s", id, p.ByName("code"), res.Deleted, elapsed(startTime))
	}
}

func serveNotify(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req notifyRequest
		err := decodeBody(w, r, &req)
		if err == nil && req.Event == "" {
			err = missing("event")
		}
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		if _, err := g.reg.Notify(r.Context(), req.RoomCode, req.Event, req.Data); err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		writeJSON(cfg, w, http.StatusOK, okResponse{Success: true}, errs)

		logf(cfg, "GAMES: Relayed %s to room %s for %s in %s", req.Event, req.RoomCode, realIP(r), elapsed(startTime))
	}
}

func serveLocations(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		packs := g.catalog.Packs()

		if pack := strings.ToLower(r.URL.Query().Get("pack")); pack != "" {
			if !g.catalog.HasPack(pack) {
				writeError(cfg, w, r, fmt.Errorf("%w: pack %q", spyfall.ErrUnknownLocation, pack), errs)

				return
			}
			packs = []string{pack}
		}

		resp := locationsResponse{Success: true, Packs: make([]packListing, 0, len(packs))}
		for _, pack := range packs {
			resp.Packs = append(resp.Packs, packListing{Name: pack, Locations: g.catalog.Locations(pack)})
		}

		writeJSON(cfg, w, http.StatusOK, resp, errs)
	}
}

// serveRoomPage is where the QR code points.
func serveRoomPage(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		room, err := g.reg.GetRoom(r.Context(), p.ByName("code"))
		if err != nil {
			w.WriteHeader(statusFor(err))

			if _, err := io.WriteString(w, newPage("Spyfall", "That room does not exist.")); err != nil {
				errs <- err
			}

			return
		}

		body := fmt.Sprintf("Room %s: %d players, %s", room.Code, len(room.Players), strings.ReplaceAll(string(room.Phase), "_", " "))
		if _, err := io.WriteString(w, newPage("Spyfall "+room.Code, body)); err != nil {
			errs <- err
		}
	}
}

// serveQRCode renders a PNG QR code of the room page URL.
func serveQRCode(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		room, err := g.reg.GetRoom(r.Context(), p.ByName("code"))
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/spyfall/rooms/" + room.Code

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: QR code for room %s (%s) to %s in %s",
			room.Code,
			humanReadableSize(int64(written)),
			realIP(r),
			elapsed(startTime),
		)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsAction is what a websocket client sends. The acting player is the one
// named by ?playerId= when the socket was opened.
type wsAction struct {
	Type       string `json:"type"`
	SuspectID  int    `json:"suspectId"`
	LocationID string `json:"locationId"`
}

// wsMessage is everything the server writes except events, which go out
// as bare envelopes.
type wsMessage struct {
	Type    string        `json:"type"`
	State   *spyfall.Room `json:"state,omitempty"`
	Action  string        `json:"action,omitempty"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
}

type wsClient struct {
	cfg      *Config
	g        *game
	conn     *websocket.Conn
	code     string
	playerID *int
	limiter  *rate.Limiter
	send     chan any
}

func serveWebSocket(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, ok := spyfall.NormalizeCode(p.ByName("code"))
		if !ok {
			writeError(cfg, w, r, spyfall.ErrRoomNotFound, errs)

			return
		}

		var playerID *int
		if v := r.URL.Query().Get("playerId"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				writeError(cfg, w, r, fmt.Errorf("%w: playerId %q", errBadRequest, v), errs)

				return
			}
			playerID = &id
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		stop := context.AfterFunc(g.ctx, cancel)
		defer stop()

		// Subscribe first so nothing published between the two calls is lost.
		sub, err := g.reg.Subscribe(ctx, code)
		if err != nil {
			writeError(cfg, w, r, err, errs)

			return
		}

		room, err := g.reg.GetRoom(ctx, code)
		if err != nil {
			_ = sub.Close()
			writeError(cfg, w, r, err, errs)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			_ = sub.Close()
			logf(cfg, "GAMES: Websocket upgrade for %s failed: %v", realIP(r), err)

			return
		}
		conn.SetReadLimit(maxWSMessage)

		context.AfterFunc(ctx, func() { _ = conn.Close() })

		c := &wsClient{
			cfg:      cfg,
			g:        g,
			conn:     conn,
			code:     code,
			playerID: playerID,
			limiter:  rate.NewLimiter(rate.Limit(cfg.wsRate), cfg.wsBurst),
			send:     make(chan any, 8),
		}

		c.send <- wsMessage{Type: "state", State: room, Success: true}

		logf(cfg, "GAMES: Websocket opened on room %s by %s", code, realIP(r))

		if playerID != nil {
			g.connect(code, *playerID)
			defer g.disconnect(cfg, code, *playerID, cfg.playerTimeout)
		}

		go c.writePump(ctx, cancel, sub)
		c.readPump(ctx)

		logf(cfg, "GAMES: Websocket closed on room %s by %s", code, realIP(r))
	}
}

func (c *wsClient) write(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))

	return c.conn.WriteJSON(v)
}

// writePump owns every write to the connection. A dropped subscription is
// replaced and followed by a fresh state message.
func (c *wsClient) writePump(ctx context.Context, cancel context.CancelFunc, sub spyfall.Subscription) {
	defer cancel()
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		case e, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return
				}

				next, err := c.g.reg.Subscribe(ctx, c.code)
				if err != nil {
					return
				}
				sub = next

				room, err := c.g.reg.GetRoom(ctx, c.code)
				if err != nil {
					_ = c.write(wsMessage{Type: "state", Error: errorCode(err)})

					return
				}

				if err := c.write(wsMessage{Type: "state", State: room, Success: true}); err != nil {
					return
				}

				continue
			}

			if err := c.write(e); err != nil {
				return
			}

			if e.Name == spyfall.EventRoomClosed {
				return
			}
		}
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var a wsAction
		if err := json.Unmarshal(data, &a); err != nil {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
			c.reply(ctx, a.Type, err)

			continue
		}

		switch {
		case !c.limiter.Allow():
			err = errRateLimited
		case c.playerID == nil:
			err = fmt.Errorf("%w: open the socket with ?playerId= to act", errBadRequest)
		default:
			err = c.act(ctx, a)
		}

		c.reply(ctx, a.Type, err)
	}
}

func (c *wsClient) act(ctx context.Context, a wsAction) error {
	var err error

	id := *c.playerID

	switch a.Type {
	case "vote":
		_, err = c.g.reg.CastVote(ctx, c.code, id, a.SuspectID)
	case "guess":
		_, err = c.g.reg.GuessLocation(ctx, c.code, id, a.LocationID)
	case "timeout":
		_, err = c.g.reg.ReportTimeout(ctx, c.code, id)
	case "lobby":
		_, err = c.g.reg.ReturnToLobby(ctx, c.code, id)
	case "leave":
		_, err = c.g.reg.RemovePlayer(ctx, c.code, id)
	default:
		err = fmt.Errorf("%w: unknown action %q", errBadRequest, a.Type)
	}

	if err != nil {
		logf(c.cfg, "GAMES: %s by player %d in room %s rejected: %v", a.Type, id, c.code, err)
	}

	return err
}

func (c *wsClient) reply(ctx context.Context, action string, err error) {
	msg := wsMessage{Type: "result", Action: action, Success: err == nil}
	if err != nil {
		msg.Error = errorCode(err)
	}

	select {
	case c.send <- msg:
	case <-ctx.Done():
	}
}

// registerSpyfall sets up:
//   - $path/api/...          JSON API
//   - $path/rooms/:code      room page, the QR code target
//   - $path/rooms/:code/ws   websocket for that room
//   - $path/rooms/:code/qr   PNG QR code of the room page
func registerSpyfall(cfg *Config, path string, mux *httprouter.Router, g *game, errs chan<- error) {
	api := cfg.prefix + path + "/api"

	mux.POST(api+"/rooms", serveCreateRoom(cfg, g, errs))
	mux.GET(api+"/rooms/:code", serveRoom(cfg, g, errs))
	mux.DELETE(api+"/rooms/:code/players/:id", serveRemovePlayer(cfg, g, errs))

	mux.PUT(api+"/rooms/:code/players", roomAction(cfg, "Join", errs,
		func(ctx context.Context, code string, req addPlayerRequest) (*spyfall.Room, error) {
			if req.Player == nil {
				return nil, missing("player")
			}

			return g.reg.AddPlayer(ctx, code, *req.Player)
		}))

	mux.POST(api+"/rooms/:code/start", roomAction(cfg, "Start", errs,
		func(ctx context.Context, code string, req startRequest) (*spyfall.Room, error) {
			if req.PlayerID == nil {
				return nil, missing("playerId")
			}
			if req.RoundDurationMinutes < 0 {
				return nil, fmt.Errorf("%w: roundDurationMinutes must not be negative", errBadRequest)
			}

			return g.reg.StartRound(ctx, code, *req.PlayerID, req.LocationID, time.Duration(req.RoundDurationMinutes)*time.Minute)
		}))

	mux.POST(api+"/rooms/:code/votes", roomAction(cfg, "Vote", errs,
		func(ctx context.Context, code string, req voteRequest) (*spyfall.Room, error) {
			if req.VoterID == nil || req.SuspectID == nil {
				return nil, missing("voterId and suspectId")
			}

			return g.reg.CastVote(ctx, code, *req.VoterID, *req.SuspectID)
		}))

	mux.POST(api+"/rooms/:code/guess", roomAction(cfg, "Guess", errs,
		func(ctx context.Context, code string, req guessRequest) (*spyfall.Room, error) {
			if req.PlayerID == nil {
				return nil, missing("playerId")
			}

			return g.reg.GuessLocation(ctx, code, *req.PlayerID, req.LocationID)
		}))

	mux.POST(api+"/rooms/:code/timeout", roomAction(cfg, "Timeout", errs,
		func(ctx context.Context, code string, req playerRequest) (*spyfall.Room, error) {
			if req.PlayerID == nil {
				return nil, missing("playerId")
			}

			return g.reg.ReportTimeout(ctx, code, *req.PlayerID)
		}))

	mux.POST(api+"/rooms/:code/lobby", roomAction(cfg, "Lobby", errs,
		func(ctx context.Context, code string, req playerRequest) (*spyfall.Room, error) {
			if req.PlayerID == nil {
				return nil, missing("playerId")
			}

			return g.reg.ReturnToLobby(ctx, code, *req.PlayerID)
		}))

	mux.POST(api+"/notify", serveNotify(cfg, g, errs))
	mux.GET(api+"/locations", serveLocations(cfg, g, errs))

	mux.GET(cfg.prefix+path+"/rooms/:code", serveRoomPage(cfg, g, errs))
	mux.GET(cfg.prefix+path+"/rooms/:code/ws", serveWebSocket(cfg, g, errs))
	mux.GET(cfg.prefix+path+"/rooms/:code/qr", serveQRCode(cfg, g, errs))
}
