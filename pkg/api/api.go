package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tg-channel-parser/pkg/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// Querier is the read side of the store exposed over HTTP.
type Querier interface {
	Ping(ctx context.Context) error
	ListChannels(ctx context.Context) ([]storage.Channel, error)
	GetChannel(ctx context.Context, id int64) (*storage.Channel, error)
	ListMessages(ctx context.Context, f storage.MessageFilter) ([]storage.Message, error)
	GetMessage(ctx context.Context, id int64) (*storage.Message, error)
	ListLocations(ctx context.Context, messageID *int64, limit, offset int) ([]storage.LocationMention, error)
	ListDangerMentions(ctx context.Context, messageID *int64, tier string, limit, offset int) ([]storage.DangerMention, error)
	GetStats(ctx context.Context, channelID *int64) (*storage.Stats, error)
}

// Server serves the read-only query API. Nothing here mutates the store.
type Server struct {
	store Querier
	log   *zap.Logger
	http  *http.Server
}

func NewServer(addr string, store Querier, log *zap.Logger) *Server {
	s := &Server{store: store, log: log}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api")
	{
		v1.GET("/channels", s.listChannels)
		v1.GET("/channels/:id", s.getChannel)
		v1.GET("/messages", s.listMessages)
		v1.GET("/messages/:id", s.getMessage)
		v1.GET("/locations", s.listLocations)
		v1.GET("/danger", s.listDanger)
		v1.GET("/stats", s.getStats)
	}

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listChannels(c *gin.Context) {
	channels, err := s.store.ListChannels(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (s *Server) getChannel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ch, err := s.store.GetChannel(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) listMessages(c *gin.Context) {
	f := storage.MessageFilter{}
	var ok bool
	if f.ChannelID, ok = queryInt64(c, "channel_id"); !ok {
		return
	}
	if f.HasLocation, ok = queryBool(c, "has_location"); !ok {
		return
	}
	if f.HasDanger, ok = queryBool(c, "has_danger"); !ok {
		return
	}
	if f.DateFrom, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.DateTo, ok = queryTime(c, "to"); !ok {
		return
	}
	if f.Limit, f.Offset, ok = pagination(c); !ok {
		return
	}

	msgs, err := s.store.ListMessages(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) getMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msg, err := s.store.GetMessage(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) listLocations(c *gin.Context) {
	messageID, ok := queryInt64(c, "message_id")
	if !ok {
		return
	}
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	locs, err := s.store.ListLocations(c.Request.Context(), messageID, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locs})
}

func (s *Server) listDanger(c *gin.Context) {
	messageID, ok := queryInt64(c, "message_id")
	if !ok {
		return
	}
	tier := c.Query("tier")
	if tier != "" && tier != "high" && tier != "low" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be high or low"})
		return
	}
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	mentions, err := s.store.ListDangerMentions(c.Request.Context(), messageID, tier, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"danger_mentions": mentions})
}

func (s *Server) getStats(c *gin.Context) {
	channelID, ok := queryInt64(c, "channel_id")
	if !ok {
		return
	}
	stats, err := s.store.GetStats(c.Request.Context(), channelID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return 0, false
	}
	return id, true
}

func queryInt64(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer"})
		return nil, false
	}
	return &v, true
}

func queryBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a boolean"})
		return nil, false
	}
	return &v, true
}

func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC 3339"})
		return nil, false
	}
	return &t, true
}

func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return 0, 0, false
		}
		if v > maxLimit {
			v = maxLimit
		}
		limit = v
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}
