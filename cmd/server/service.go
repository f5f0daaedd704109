package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"marketsim/services/backtest"
	"marketsim/services/candlestore"
	"marketsim/services/config"
	"marketsim/services/market"
)

var (
	backtestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_backtests_total",
		Help: "Total number of backtest jobs by terminal status",
	}, []string{"status"})

	backtestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketsim_backtest_duration_seconds",
		Help:    "Wall-clock duration of completed backtest runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	backtestsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_backtests_running",
		Help: "Number of backtest jobs currently executing",
	})
)

func init() {
	prometheus.MustRegister(backtestsTotal, backtestDuration, backtestsRunning)
}

type jobStatus string

const (
	statusRunning jobStatus = "running"
	statusDone    jobStatus = "completed"
	statusFailed  jobStatus = "failed"
)

// job tracks one submitted backtest. progress holds the latest snapshot;
// subscribers poll it rather than consuming a shared channel.
type job struct {
	mu       sync.RWMutex
	ID       string
	Status   jobStatus
	Error    string
	Result   *backtest.Result
	Progress backtest.Progress
	Created  time.Time
}

func (j *job) snapshot() gin.H {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := gin.H{
		"job_id":     j.ID,
		"status":     j.Status,
		"created_at": j.Created,
		"progress":   j.Progress,
	}
	if j.Error != "" {
		out["error"] = j.Error
	}
	if j.Result != nil {
		out["result"] = j.Result
	}
	return out
}

type service struct {
	cfg      *config.App
	store    *candlestore.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	jobs map[string]*job
}

func newService(cfg *config.App, store *candlestore.Store, logger *zap.Logger) *service {
	return &service{
		cfg:    cfg,
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		jobs: make(map[string]*job),
	}
}

func (s *service) setupRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleSubmit)
		api.GET("/backtest/:job_id", s.handleGet)
		api.GET("/backtest/:job_id/ws", s.handleProgressWS)
	}
	r.GET("/health", s.handleHealth)
	if s.cfg.Server.MetricsEnable {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// handleSubmit accepts a run config, merged over the server defaults, and
// starts the backtest asynchronously. Responds immediately with the job ID.
func (s *service) handleSubmit(c *gin.Context) {
	cfg := s.cfg.Backtest
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j := &job{
		ID:      uuid.NewString(),
		Status:  statusRunning,
		Created: time.Now(),
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	s.logger.Info("backtest submitted",
		zap.String("job_id", j.ID),
		zap.Strings("symbols", cfg.Symbols),
		zap.String("timeframe", cfg.Timeframe))

	go s.runJob(j, cfg)

	c.JSON(http.StatusAccepted, gin.H{"job_id": j.ID, "status": j.Status})
}

func (s *service) runJob(j *job, cfg backtest.Config) {
	backtestsRunning.Inc()
	defer backtestsRunning.Dec()

	ctx := context.Background()
	started := time.Now()

	candles, err := s.loadCandles(ctx, cfg)
	if err != nil {
		s.failJob(j, err)
		return
	}

	engine, err := backtest.New(cfg, s.logger.With(zap.String("job_id", j.ID)))
	if err != nil {
		s.failJob(j, err)
		return
	}

	progress := make(chan backtest.Progress, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			j.mu.Lock()
			j.Progress = p
			j.mu.Unlock()
		}
	}()
	engine.SetProgress(progress)

	result, err := engine.Run(ctx, candles)
	close(progress)
	<-done

	if err != nil {
		s.failJob(j, err)
		return
	}

	j.mu.Lock()
	j.Status = statusDone
	j.Result = result
	j.mu.Unlock()

	backtestsTotal.WithLabelValues(string(statusDone)).Inc()
	backtestDuration.Observe(time.Since(started).Seconds())
}

func (s *service) loadCandles(ctx context.Context, cfg backtest.Config) (map[string]market.Series, error) {
	candles := make(map[string]market.Series, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		var series market.Series
		var err error
		if cfg.StartTime > 0 && cfg.EndTime > cfg.StartTime {
			series, err = s.store.Load(ctx, sym, cfg.Timeframe, cfg.StartTime, cfg.EndTime)
		} else {
			series, err = s.store.LoadLastDays(ctx, sym, cfg.Timeframe, cfg.Days)
		}
		if err != nil {
			return nil, err
		}
		candles[sym] = series
	}
	return candles, nil
}

func (s *service) failJob(j *job, err error) {
	s.logger.Error("backtest job failed", zap.String("job_id", j.ID), zap.Error(err))
	j.mu.Lock()
	j.Status = statusFailed
	j.Error = err.Error()
	j.mu.Unlock()
	backtestsTotal.WithLabelValues(string(statusFailed)).Inc()
}

func (s *service) handleGet(c *gin.Context) {
	j := s.lookup(c.Param("job_id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, j.snapshot())
}

// handleProgressWS streams job progress snapshots until the job reaches a
// terminal state. Updates are rate limited to 4/s per connection.
func (s *service) handleProgressWS(c *gin.Context) {
	j := s.lookup(c.Param("job_id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	limiter := rate.NewLimiter(rate.Limit(4), 1)
	for {
		if err := limiter.Wait(c.Request.Context()); err != nil {
			return
		}
		if err := conn.WriteJSON(j.snapshot()); err != nil {
			return
		}
		j.mu.RLock()
		terminal := j.Status != statusRunning
		j.mu.RUnlock()
		if terminal {
			return
		}
	}
}

func (s *service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *service) lookup(id string) *job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}
