// Package server exposes the borrow-lifecycle engine over REST.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bookvault/internal/app"
	"bookvault/internal/ratelimit"
	"bookvault/internal/store"
	"bookvault/internal/sweeper"
	"bookvault/internal/util"
	"bookvault/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	Sweeps        *sweeper.Runner
	BorrowLimiter *ratelimit.FixedWindowLimiter
}

// Server exposes HTTP endpoints for the library backend. Authentication
// is terminated upstream; the gateway asserts identity via X-User-*
// headers.
type Server struct {
	app           *app.App
	sweeps        *sweeper.Runner
	borrowLimiter *ratelimit.FixedWindowLimiter
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:           cfg.App,
		sweeps:        cfg.Sweeps,
		borrowLimiter: cfg.BorrowLimiter,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("bookvault", util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.Handle("/api/books", s.withUser(s.handleBooks))
	s.mux.Handle("/api/books/", s.withUser(s.handleBookByID))
	s.mux.Handle("/api/borrow/", s.withUser(s.handleBorrow))
	s.mux.Handle("/api/settings", s.withAdmin(s.handleSettings))
	s.mux.Handle("/api/admin/sweep", s.withAdmin(s.handleSweep))
	s.mux.Handle("/api/admin/stats", s.withAdmin(s.handleStats))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, app.UserRef)

// withUser requires an asserted identity on the request.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromRequest(r)
		if user.ID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

// withAdmin additionally requires the admin role.
func (s *Server) withAdmin(next userHandler) http.Handler {
	return s.withUser(func(w http.ResponseWriter, r *http.Request, user app.UserRef) {
		if !isAdmin(r) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, user app.UserRef) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListBooks(r.URL.Query().Get("q"), r.URL.Query().Get("category"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, books)
	case http.MethodPost:
		if !isAdmin(r) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var input app.BookInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		book, err := s.app.CreateBook(input)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, user app.UserRef) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/books/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	if action == "waitlist" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		contact := user.Email
		if contact == "" {
			contact = user.ID
		}
		book, err := s.app.JoinWaitlist(id, contact)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
		return
	}
	if action != "" {
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		if !isAdmin(r) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var upd app.BookUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		book, err := s.app.UpdateBook(id, upd)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodDelete:
		if !isAdmin(r) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if err := s.app.DeleteBook(id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "book removed"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request, user app.UserRef) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/borrow/")
	action, arg, _ := strings.Cut(rest, "/")
	switch action {
	case "request":
		s.handleRequestBorrow(w, r, user, arg)
	case "pending":
		s.handleListPending(w, r)
	case "approve":
		s.handleApprove(w, r, arg)
	case "reject":
		s.handleReject(w, r, arg)
	case "return":
		s.handleReturn(w, r, arg)
	case "my":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		views, err := s.app.ListForUser(user.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	case "all":
		s.handleListAll(w, r)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleRequestBorrow(w http.ResponseWriter, r *http.Request, user app.UserRef, bookID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id required")
		return
	}
	if !s.borrowLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "too many borrow requests")
		return
	}
	rec, err := s.app.RequestBorrow(user, bookID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	views, err := s.app.ListPending()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, recordID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	view, err := s.app.ApproveRequest(recordID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, recordID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	view, err := s.app.RejectRequest(recordID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, recordID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	rec, amount, err := s.app.ReturnBook(recordID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec, "fine": amount})
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	q := r.URL.Query()
	filter := store.BorrowFilter{
		UserName:  q.Get("userName"),
		BookTitle: q.Get("bookTitle"),
		Page:      intQuery(q.Get("page"), 1),
		Limit:     intQuery(q.Get("limit"), 20),
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := parseBorrowStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}
	page, err := s.app.ListAll(filter)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request, _ app.UserRef) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.app.Settings()
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var settings domain.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		saved, err := s.app.UpdateSettings(settings)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request, _ app.UserRef) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.sweeps == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper not configured")
		return
	}
	result, err := s.sweeps.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, sweeper.ErrSweepRunning) {
			writeError(w, http.StatusConflict, "sweep already running")
			return
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ app.UserRef) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func userFromRequest(r *http.Request) app.UserRef {
	return app.UserRef{
		ID:    strings.TrimSpace(r.Header.Get("X-User-Id")),
		Name:  strings.TrimSpace(r.Header.Get("X-User-Name")),
		Email: strings.TrimSpace(r.Header.Get("X-User-Email")),
	}
}

func isAdmin(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-User-Role")), "admin")
}

func parseBorrowStatus(raw string) (domain.BorrowStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(domain.StatusPending):
		return domain.StatusPending, true
	case string(domain.StatusBorrowed):
		return domain.StatusBorrowed, true
	case string(domain.StatusRejected):
		return domain.StatusRejected, true
	case string(domain.StatusReturned):
		return domain.StatusReturned, true
	default:
		return "", false
	}
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// writeAppError maps the engine's error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is a transient failure the caller may retry.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: errorCode(status)})
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "INVALID_STATE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
