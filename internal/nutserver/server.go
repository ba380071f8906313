package nutserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"optiattack/internal/imaging"
	"optiattack/internal/logging"
	"optiattack/internal/oracle"
)

type Config struct {
	// BasePath prefixes every NUT endpoint; empty means oracle.DefaultBasePath.
	BasePath       string
	ControllerHost string
	ControllerPort int
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is a reference network under test speaking the oracle protocol.
type Server struct {
	cfg        Config
	classifier Classifier
	logger     *slog.Logger

	mu         sync.Mutex
	running    bool
	classified int
}

func New(cfg Config, classifier Classifier, logger *slog.Logger) *Server {
	if cfg.BasePath == "" {
		cfg.BasePath = oracle.DefaultBasePath
	}
	return &Server{cfg: cfg, classifier: classifier, logger: logging.OrDiscard(logger)}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.handleHealth)
	api := r.Group(s.cfg.BasePath)
	api.GET(oracle.PathInfo, s.handleInfo)
	api.POST(oracle.PathRun, s.handleRun)
	api.POST(oracle.PathStop, s.handleStop)
	api.GET(oracle.PathTestResults, s.handleTestResults)
	api.POST(oracle.PathNewAction, s.handleNewAction)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("NUT server listening", "addr", addr, "base_path", s.cfg.BasePath)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) state() oracle.State {
	st := oracle.State{
		IsRunning: s.running,
		RunNUT:    oracle.PathRun,
		StopNUT:   oracle.PathStop,
		InfoNUT:   oracle.PathInfo,
		NewAction: oracle.PathNewAction,
	}
	if s.running {
		port := s.cfg.ControllerPort
		st.ControllerHost = s.cfg.ControllerHost
		st.ControllerPort = &port
	}
	return st
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "NUT server is running"})
}

func (s *Server) handleInfo(c *gin.Context) {
	s.mu.Lock()
	st := s.state()
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleStop(c *gin.Context) {
	s.mu.Lock()
	s.running = false
	st := s.state()
	s.mu.Unlock()
	s.logger.Info("NUT stopped")
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleTestResults(c *gin.Context) {
	s.mu.Lock()
	n := s.classified
	s.mu.Unlock()
	c.JSON(http.StatusOK, oracle.TestResults{Classified: n})
}

func (s *Server) handleRun(c *gin.Context) {
	resp, ok := s.classify(c)
	if !ok {
		return
	}
	s.mu.Lock()
	s.running = true
	resp.State = s.state()
	s.mu.Unlock()
	s.logger.Info("NUT started", "top", resp.Predictions[0].Label)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNewAction(c *gin.Context) {
	resp, ok := s.classify(c)
	if !ok {
		return
	}
	s.mu.Lock()
	resp.State = s.state()
	s.mu.Unlock()
	c.JSON(http.StatusOK, resp)
}

func (s *Server) classify(c *gin.Context) (oracle.PredictionResponse, bool) {
	var req oracle.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return oracle.PredictionResponse{}, false
	}
	img, err := imaging.FromRows(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return oracle.PredictionResponse{}, false
	}
	preds, err := s.classifier.Classify(c.Request.Context(), img)
	if err != nil {
		s.logger.Error("classification failed", "err", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return oracle.PredictionResponse{}, false
	}
	if len(preds) == 0 {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "classifier returned no predictions"})
		return oracle.PredictionResponse{}, false
	}
	s.mu.Lock()
	s.classified++
	s.mu.Unlock()
	return oracle.PredictionResponse{Predictions: preds}, true
}
