// Package control exposes the recording session to a host over a websocket:
// a ready probe, a status query and start/stop/toggle commands that map onto
// the session transitions.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/session"
	"nhooyr.io/websocket"
)

const (
	ActionPing   = "ping"
	ActionStatus = "checkRecorderStatus"
	ActionStart  = "startRecording"
	ActionStop   = "stopRecording"
	ActionToggle = "toggleRecorder"
)

const readLimit = 1 << 16

type Config struct {
	Addr           string   `yaml:"addr" env:"STEPREC_CONTROL_ADDR" env-default:"127.0.0.1:8765"`
	OriginPatterns []string `yaml:"origin_patterns" env:"STEPREC_CONTROL_ORIGINS" env-separator:","`
}

type Request struct {
	Action string `json:"action"`
}

type Response struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	RecorderExists bool   `json:"recorderExists"`
	IsRecording    bool   `json:"isRecording"`
	StepCount      int    `json:"stepCount"`
	State          string `json:"state"`
}

type Server struct {
	session  *session.Session
	page     func() *dom.Page
	onChange func()
	origins  []string
	logger   *slog.Logger
}

type Option func(*Server)

// WithPage sets the function returning the frame registry passed to a new recording.
func WithPage(f func() *dom.Page) Option {
	return func(s *Server) { s.page = f }
}

// WithChangeHook registers a function called after every successful transition.
func WithChangeHook(f func()) Option {
	return func(s *Server) { s.onChange = f }
}

func WithOriginPatterns(p []string) Option {
	return func(s *Server) { s.origins = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func NewServer(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session: sess,
		page:    func() *dom.Page { return nil },
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("component", "control"))
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.status(true, "ok"))
	})
	return mux
}

func (s *Server) status(ok bool, msg string) Response {
	st := s.session.State()
	return Response{
		Success:        ok,
		Message:        msg,
		RecorderExists: true,
		IsRecording:    st == session.Recording,
		StepCount:      s.session.StepCount(),
		State:          st.String(),
	}
}

// Handle executes a single request.
func (s *Server) Handle(req Request) Response {
	var err error
	var msg string
	switch req.Action {
	case ActionPing:
		return s.status(true, "recorder is ready")
	case ActionStatus:
		return s.status(true, "")
	case ActionStart:
		if s.session.State() == session.Paused {
			err = s.session.Resume()
		} else {
			err = s.session.Start(s.page())
		}
		msg = "recording started"
	case ActionStop:
		err = s.session.Pause()
		msg = "recording stopped"
	case ActionToggle:
		err = s.session.Toggle(s.page())
		msg = "recorder toggled"
	default:
		s.logger.Warn(fmt.Sprintf("unknown action %q", req.Action))
		return s.status(false, fmt.Sprintf("unknown action %q", req.Action))
	}
	if err != nil {
		return s.status(false, err.Error())
	}
	if s.onChange != nil {
		s.onChange()
	}
	return s.status(true, msg)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn(fmt.Sprintf("failed to accept websocket: %v", err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				s.logger.Debug(fmt.Sprintf("websocket read failed: %v", err))
			}
			return
		}
		var req Request
		resp := s.status(false, "malformed request")
		if err := json.Unmarshal(msg, &req); err == nil {
			resp = s.Handle(req)
		}
		b, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error(fmt.Sprintf("failed to encode response: %v", err))
			return
		}
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, b)
		cancel()
		if err != nil {
			s.logger.Debug(fmt.Sprintf("websocket write failed: %v", err))
			return
		}
	}
}

// ListenAndServe serves the control channel on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves the control channel on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()
	s.logger.Info(fmt.Sprintf("control channel listening on ws://%s/ws", l.Addr()))
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
