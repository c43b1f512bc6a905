package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AmanBang/meshcall/internal/config"
	"github.com/AmanBang/meshcall/internal/signal"
)

// codeChars excludes ambiguous characters (0/O, 1/I).
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const defaultRoomMaxPeers = 8

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	MaxPeers int `json:"maxPeers"`
}

// CreateRoomResponse is returned on room creation.
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// Server is the relay HTTP and websocket surface.
type Server struct {
	cfg      *config.RelayConfig
	store    Store
	hub      *Hub
	router   *gin.Engine
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.RelayConfig, store Store, logger *slog.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		hub:    NewHub(store, logger),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/rooms", s.createRoom)
		api.GET("/rooms/:roomId", s.getRoom)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/rooms/:roomId", s.serveWs)
	}

	s.router = router
	return s
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the hub and serves HTTP until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.router,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	s.logger.Info("relay listening", "port", s.cfg.Port, "environment", s.cfg.Environment)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) createRoom(c *gin.Context) {
	// An empty body is fine; anything unparseable is not.
	var req CreateRoomRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.MaxPeers <= 0 {
		req.MaxPeers = defaultRoomMaxPeers
	}

	room := Room{
		ID:        uuid.New().String(),
		Code:      generateRoomCode(),
		CreatedAt: time.Now(),
		MaxPeers:  req.MaxPeers,
	}
	if err := s.store.CreateRoom(c.Request.Context(), room); err != nil {
		s.logger.Error("creating room", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}

	s.logger.Info("room created", "room", room.ID, "code", room.Code)
	c.JSON(http.StatusCreated, CreateRoomResponse{RoomID: room.ID, Code: room.Code})
}

func (s *Server) getRoom(c *gin.Context) {
	room, err := s.store.GetRoom(c.Request.Context(), c.Param("roomId"))
	if errors.Is(err, ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		s.logger.Error("loading room", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	c.JSON(http.StatusOK, room)
}

// serveWs validates the room and participant identity, upgrades the
// connection and hands it to the hub.
func (s *Server) serveWs(c *gin.Context) {
	room, err := s.store.GetRoom(c.Request.Context(), c.Param("roomId"))
	if errors.Is(err, ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}

	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing participant id"})
		return
	}
	muted, _ := strconv.ParseBool(c.Query("muted"))
	video, _ := strconv.ParseBool(c.Query("video"))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		logger:   s.logger,
		roomID:   room.ID,
		maxPeers: room.MaxPeers,
		participant: signal.Participant{
			ID:           id,
			Name:         c.Query("name"),
			Muted:        muted,
			VideoEnabled: video,
			Online:       true,
		},
		send: make(chan signal.Frame, 256),
	}

	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

// originChecker allows non-browser clients (no Origin header) and any
// origin on the configured list.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// generateRoomCode returns a random human-enterable join code.
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
