// Package server exposes resolve and realpath over HTTP.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pathcanon/pathcanon/internal/config"
	"github.com/pathcanon/pathcanon/internal/logging"
	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/observability"
	"github.com/pathcanon/pathcanon/internal/ratelimit"
	"github.com/pathcanon/pathcanon/internal/realpath"
	"github.com/pathcanon/pathcanon/internal/resolve"
)

const (
	headerRequestID = "X-Request-Id"

	codeTimeout     = "ETIMEDOUT"
	codeRateLimited = "RATE_LIMITED"
)

var errTimeout = errors.New("operation timed out")

type Server struct {
	grammar      normalize.Grammar
	timeout      time.Duration
	maxFragments int
	expandHome   bool

	fs      realpath.FS
	env     resolve.Env
	log     logrus.FieldLogger
	traces  *logging.TraceLogger
	metrics *observability.Metrics
	limiter *ratelimit.Limiter
	mux     *http.ServeMux
	now     func() time.Time

	requestCount uint64
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	g, err := cfg.ParsedGrammar()
	if err != nil {
		return nil, err
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Server{
		grammar:      g,
		timeout:      cfg.Server.Timeout.Std(),
		maxFragments: cfg.Server.MaxFragments,
		expandHome:   cfg.ExpandHome,
		fs:           realpath.OSFS{},
		env:          resolve.OSEnv{},
		log:          discard,
		now:          time.Now,
	}
	if cfg.Server.RateLimit.Enabled {
		s.limiter = ratelimit.NewLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	}
	s.mux = s.routes()
	return s, nil
}

func (s *Server) SetTraceLogger(traces *logging.TraceLogger) {
	s.traces = traces
}

func (s *Server) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

func (s *Server) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

// SetFilesystem replaces the host filesystem and environment used by
// realpath and resolve requests.
func (s *Server) SetFilesystem(fs realpath.FS, env resolve.Env) {
	s.fs = fs
	s.env = env
}

// Prune drops idle rate limit buckets.
func (s *Server) Prune() int {
	return s.limiter.Prune(s.now())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := s.newRequestID()
	w.Header().Set(headerRequestID, id)
	r = r.WithContext(withRequestID(r.Context(), id))

	if !s.limiter.Allow(ratelimit.ClientKey(r.RemoteAddr), s.now()) {
		s.metrics.ObserveRateLimited()
		s.log.WithFields(logrus.Fields{"request_id": id, "client": r.RemoteAddr}).Warn("rate limited")
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded", id)
		return
	}

	s.mux.ServeHTTP(w, r)
}

// run executes op with the request timeout. A walk cannot be interrupted, so
// on timeout the result is abandoned and the goroutine finishes on its own.
func run[T any](ctx context.Context, timeout time.Duration, op func() (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := op()
		done <- outcome{val, err}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", errTimeout, ctx.Err())
	}
}

func (s *Server) record(trace logging.Trace, start time.Time) {
	trace.DurationUS = s.now().Sub(start).Microseconds()
	if err := s.traces.Write(trace); err != nil {
		s.log.WithError(err).Warn("trace log write failed")
	}
	s.metrics.ObserveTrace(trace)

	entry := s.log.WithFields(logrus.Fields{
		"request_id": trace.RequestID,
		"op":         trace.Op,
		"result":     trace.Result,
	})
	if trace.Failed() {
		entry.WithField("code", trace.Code).Info("operation failed")
		return
	}
	entry.Debug("operation done")
}

func (s *Server) newRequestID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	value := atomic.AddUint64(&s.requestCount, 1)
	return fmt.Sprintf("req-%d", value)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
