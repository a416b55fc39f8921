package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"syscall"
	"time"

	"github.com/pathcanon/pathcanon/internal/fault"
	"github.com/pathcanon/pathcanon/internal/logging"
	"github.com/pathcanon/pathcanon/internal/normalize"
	"github.com/pathcanon/pathcanon/internal/pathtext"
	"github.com/pathcanon/pathcanon/internal/realpath"
	"github.com/pathcanon/pathcanon/internal/resolve"
)

var (
	errTooManyFragments = errors.New("too many path fragments")
	errMissingPath      = errors.New("path parameter is required")
)

type resolveResponse struct {
	Path      string `json:"path"`
	DeviceLen int    `json:"device_len"`
}

type realpathResponse struct {
	Path  string          `json:"path"`
	Stats realpath.Stats  `json:"stats"`
	Links []realpath.Link `json:"links,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/resolve", s.handleResolve)
	mux.HandleFunc("GET /v1/realpath", s.handleRealpath)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	id := requestID(r.Context())
	query := r.URL.Query()
	fragments := query["p"]

	trace := logging.Trace{
		Timestamp: start.UTC(),
		RequestID: id,
		Op:        logging.OpResolve,
		Grammar:   query.Get("grammar"),
		Inputs:    fragments,
	}

	g := s.grammar
	if trace.Grammar != "" {
		parsed, err := normalize.ParseGrammar(trace.Grammar)
		if err != nil {
			s.fail(w, trace, start, fault.Invalid("resolve", "", err))
			return
		}
		g = parsed
	}
	trace.Grammar = g.Name

	if len(fragments) > s.maxFragments {
		s.fail(w, trace, start, fault.Invalid("resolve", "", errTooManyFragments))
		return
	}
	inputs, err := s.prepare(fragments)
	if err != nil {
		s.fail(w, trace, start, err)
		return
	}

	resolver := resolve.New(g, s.env)
	res, err := run(r.Context(), s.timeout, func() (resolve.Result, error) {
		return resolver.Resolve(inputs...)
	})
	if err != nil {
		s.fail(w, trace, start, err)
		return
	}
	out, err := pathtext.Decode(res.Path)
	if err != nil {
		s.fail(w, trace, start, err)
		return
	}

	trace.Result = out
	trace.DeviceLen = res.DeviceLen
	s.record(trace, start)
	writeJSON(w, http.StatusOK, resolveResponse{Path: out, DeviceLen: res.DeviceLen})
}

func (s *Server) handleRealpath(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	id := requestID(r.Context())
	path := r.URL.Query().Get("path")

	trace := logging.Trace{
		Timestamp: start.UTC(),
		RequestID: id,
		Op:        logging.OpRealpath,
		Grammar:   s.grammar.Name,
		Inputs:    []string{path},
	}

	if path == "" {
		s.fail(w, trace, start, fault.Invalid("realpath", "", errMissingPath))
		return
	}
	inputs, err := s.prepare([]string{path})
	if err != nil {
		s.fail(w, trace, start, err)
		return
	}

	walker := realpath.New(resolve.New(s.grammar, s.env), s.fs)
	walker.Log = s.log.WithField("request_id", id)
	res, err := run(r.Context(), s.timeout, func() (*realpath.Result, error) {
		return walker.Walk(inputs[0])
	})
	if err != nil {
		s.fail(w, trace, start, err)
		return
	}
	out, err := pathtext.Decode(res.Path)
	if err != nil {
		s.fail(w, trace, start, err)
		return
	}

	trace.Result = out
	trace.Stats = &res.Stats
	trace.Splices = res.Links
	s.record(trace, start)
	writeJSON(w, http.StatusOK, realpathResponse{Path: out, Stats: res.Stats, Links: res.Links})
}

// prepare validates the encoding of every input and expands "~" when
// enabled.
func (s *Server) prepare(inputs []string) ([]string, error) {
	out := make([]string, len(inputs))
	for i, in := range inputs {
		text, err := pathtext.Decode(in)
		if err != nil {
			return nil, err
		}
		if s.expandHome {
			if text, err = pathtext.ExpandHome(text); err != nil {
				return nil, err
			}
		}
		out[i] = text
	}
	return out, nil
}

func (s *Server) fail(w http.ResponseWriter, trace logging.Trace, start time.Time, err error) {
	status, code := classify(err)
	trace.Code = code
	trace.Error = err.Error()
	s.record(trace, start)
	writeError(w, status, code, err.Error(), trace.RequestID)
}

// classify maps an operation error to an HTTP status and error code.
func classify(err error) (int, string) {
	if errors.Is(err, errTimeout) {
		return http.StatusGatewayTimeout, codeTimeout
	}
	code := fault.Code(err)
	switch fault.KindOf(err) {
	case fault.KindInvalid, fault.KindEncoding:
		return http.StatusBadRequest, code
	case fault.KindNameTooLong:
		return http.StatusRequestURITooLong, code
	}
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ENOTDIR), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, code
	case errors.Is(err, syscall.ENAMETOOLONG):
		return http.StatusRequestURITooLong, code
	case errors.Is(err, syscall.ELOOP):
		return http.StatusUnprocessableEntity, code
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM), errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden, code
	}
	return http.StatusInternalServerError, code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg, id string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, RequestID: id})
}
