// Package intake accepts raw channel messages over HTTP and hands them to
// the engine's bounded queue. Heavy work never happens on the request path.
package intake

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Carl590/ai-trading-bot/internal/signal"
)

// Sink receives accepted signals; the engine implements it.
type Sink interface {
	Ingest(signal.Signal)
}

// Server is the webhook endpoint monitored channels post into.
type Server struct {
	sink Sink
	log  zerolog.Logger
}

// NewServer builds the intake server around a sink.
func NewServer(sink Sink, log zerolog.Logger) *Server {
	return &Server{sink: sink, log: log}
}

type signalRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Handler returns the HTTP mux for the intake surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/signal", s.handleSignal)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Serve starts the intake listener in the background.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("intake server stopped")
		}
	}()
	return srv
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var req signalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Channel = strings.TrimSpace(req.Channel)
	if req.Channel == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "channel and text required", http.StatusBadRequest)
		return
	}

	s.sink.Ingest(signal.Signal{
		Channel:  req.Channel,
		Text:     req.Text,
		Received: time.Now().UTC(),
	})
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"queued"}`))
}
