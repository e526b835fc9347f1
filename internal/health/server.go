// Package health exposes the worker's external HTTP surface (spec.md
// §6): liveness/status for operators and a media download proxy for
// attachments, built with gin the way the teacher's REST server is.
package health

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gotd/td/tg"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/config"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/lockservice"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/session"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/upstream"
)

// PeerResolver resolves a stored external_chat_id back to the
// InputPeerClass the upstream client needs for a direct MTProto call.
// internal/outbox and internal/discovery each keep their own dialog
// cache; the health surface gets a read-only view through this interface
// so it never has to duplicate that caching logic.
type PeerResolver interface {
	ResolvePeer(ctx context.Context, externalChatID string) (tg.InputPeerClass, error)
}

// Server wraps the gin engine and the underlying http.Server so the
// coordinator can start and gracefully stop it alongside every other
// cooperative task.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	locks  *lockservice.Service
	client *upstream.Client
	peers  PeerResolver
	sess   *session.Manager
	log    *logger.Logger
}

// New builds the health/status/download router.
func New(cfg *config.Config, locks *lockservice.Service, client *upstream.Client, peers PeerResolver, sess *session.Manager, log *logger.Logger) *Server {
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		locks:  locks,
		client: client,
		peers:  peers,
		sess:   sess,
		log:    log.WithComponent("health_server"),
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/status", s.handleStatus)
	engine.GET("/download", s.handleDownload)

	s.http = &http.Server{Addr: ":" + cfg.Port, Handler: engine}
	return s
}

// Run starts listening; returns once the listener stops (including on a
// graceful Shutdown from another goroutine).
func (s *Server) Run() error {
	s.log.Info("health server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server within the given deadline (§5
// "graceful shutdown deadline").
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// healthyHeartbeatWindow is the §4.G "healthy iff ... last heartbeat is
// < 300 s old" staleness bound.
const healthyHeartbeatWindow = 300 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	state, err := s.locks.GetState(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unknown", "error": err.Error()})
		return
	}

	uptimeSeconds := 0.0
	if state.StartedAt != nil {
		uptimeSeconds = time.Since(*state.StartedAt).Seconds()
	}
	ok := gin.H{"status": state.Status, "uptime_s": uptimeSeconds, "messages_received": state.MessagesReceived}

	switch state.Status {
	case model.ListenerStarting:
		c.JSON(http.StatusOK, ok)
	case model.ListenerRunning:
		if state.LastHeartbeat == nil || time.Since(*state.LastHeartbeat) >= healthyHeartbeatWindow {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": state.Status, "reason": "heartbeat stale"})
			return
		}
		c.JSON(http.StatusOK, ok)
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": state.Status})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	state, err := s.locks.GetState(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"status":            state.Status,
		"started_at":        state.StartedAt,
		"last_heartbeat":    state.LastHeartbeat,
		"messages_received": state.MessagesReceived,
		"recent_errors":     state.RecentErrors,
		"process_id":        state.ProcessID,
		"hostname":          state.Hostname,
		"session":           s.sess.Info(),
		"env": gin.H{
			"database_url_set":    os.Getenv("DATABASE_URL") != "",
			"telegram_api_id_set": os.Getenv("TELEGRAM_API_ID") != "",
			"telegram_hash_set":   os.Getenv("TELEGRAM_API_HASH") != "",
			"telegram_phone_set":  os.Getenv("TELEGRAM_PHONE_NUMBER") != "",
			"session_b64_set":     os.Getenv("TELEGRAM_SESSION_BASE64") != "",
		},
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			resp["rss_bytes"] = mem.RSS
		}
		if createTime, err := proc.CreateTime(); err == nil {
			resp["uptime_seconds"] = time.Since(time.UnixMilli(createTime)).Seconds()
		}
	}

	c.JSON(http.StatusOK, resp)
}

// handleDownload implements §6's media proxy: resolve the chat to a live
// peer, re-fetch the message by id, and stream its attached media back.
func (s *Server) handleDownload(c *gin.Context) {
	chatID := c.Query("telegram_chat_id")
	messageIDRaw := c.Query("telegram_message_id")
	if chatID == "" || messageIDRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "telegram_chat_id and telegram_message_id are required"})
		return
	}
	messageID, err := strconv.Atoi(messageIDRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "telegram_message_id must be numeric"})
		return
	}

	ctx := c.Request.Context()
	peer, err := s.peers.ResolvePeer(ctx, chatID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not visible"})
		return
	}

	media, err := s.client.FetchMedia(ctx, peer, messageID)
	if errors.Is(err, upstream.ErrMediaNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message or media not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+media.Name+"\"")
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, orDefault(media.MIME, "application/octet-stream"), media.Data)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
