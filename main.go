package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"liveboard/internal/bridge"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func handleWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")
		userID := c.Query("userId")

		if roomID == "" {
			roomID = "default"
		}
		if userID == "" {
			userID = uuid.NewString()
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade error", "error", err)
			return
		}

		client := hub.Join(roomID, userID, conn)
		room := client.Room
		client.logger.Info("client joined room", "color", client.Color)

		// Send sync message with current canvas state and everyone present
		client.send(Message{
			Type:   TypeSync,
			UserID: userID,
			Data: SyncData{
				Elements: room.GetElements(),
				UserID:   userID,
				Color:    client.Color,
				Peers:    room.Others(client),
				View:     client.session.View(),
			},
		})

		// Notify others about new user
		room.broadcastMessage(Message{
			Type:   TypeJoin,
			UserID: userID,
			Data:   UserInfo{ID: userID, Color: client.Color},
		}, client)

		// Send user list to all
		room.broadcastMessage(Message{Type: TypeUserList, Data: room.GetUserList()}, nil)

		// Start pumps
		go client.writePump()
		client.readPump(hub.ctx)
	}
}

func newRouter(hub *Hub, cfg Config, extraStats func() map[string]any) *gin.Engine {
	r := gin.Default()

	// Serve static files
	r.Static("/static", cfg.StaticDir)

	// Serve index.html at root
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticDir, "index.html"))
	})

	// Room-specific routes
	r.GET("/room/:roomId", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticDir, "index.html"))
	})

	// WebSocket endpoint
	r.GET("/ws/:roomId", handleWebSocket(hub))

	api := r.Group("/api")
	api.GET("/rooms/:roomId", func(c *gin.Context) {
		room, ok := hub.Room(c.Param("roomId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, room.Info())
	})
	api.GET("/stats", func(c *gin.Context) {
		stats := gin.H{}
		for k, v := range hub.Stats() {
			stats[k] = v
		}
		if extraStats != nil {
			stats["bridge"] = extraStats()
		}
		c.JSON(http.StatusOK, stats)
	})

	return r
}

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	addr := flag.String("addr", "", "address to listen on (overrides config)")
	staticDir := flag.String("static", "", "static files directory (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := NewHub(ctx, cfg, clock.New(), logger)

	var bridgeStats func() map[string]any
	if cfg.MQTT.Broker != "" {
		b := bridge.NewMQTT(cfg.MQTT, uuid.NewString(), hub.DeliverRemote, logger.With("component", "bridge"))
		if err := b.Connect(ctx); err != nil {
			logger.Error("failed to connect bridge", "error", err)
			os.Exit(1)
		}
		defer b.Close()
		hub.SetBridge(b)
		bridgeStats = b.Stats
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: newRouter(hub, cfg, bridgeStats),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.Addr)
	logger.Info("open http://localhost" + cfg.Addr + " in your browser")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
