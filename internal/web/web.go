package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"holical/internal/calendar"
	"holical/internal/config"
	appLog "holical/internal/log"
)

const resultCacheTTL = 30 * time.Second

// Server exposes the generated calendar as a subscribable feed.
type Server struct {
	cfg *config.Config
	gen *calendar.Generator
	mux *http.ServeMux

	// Generation is cheap but touches the dataset files; cache per year.
	cacheMu sync.RWMutex
	cache   map[int]cachedResult
	now     func() time.Time
}

type cachedResult struct {
	res       *calendar.Result
	body      string
	updatedAt time.Time
}

type occurrenceDTO struct {
	EventID     string    `json:"event_id"`
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AllDay      bool      `json:"all_day"`
	Date        string    `json:"date"`
	Raw         string    `json:"raw"`
	Shifted     bool      `json:"shifted"`
	Start       time.Time `json:"start"`
}

type occurrencesResponse struct {
	Year        int             `json:"year"`
	TimeZone    string          `json:"timezone"`
	GeneratedAt time.Time       `json:"generated_at"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, gen *calendar.Generator) *Server {
	s := &Server{
		cfg:   cfg,
		gen:   gen,
		mux:   http.NewServeMux(),
		cache: make(map[int]cachedResult),
		now:   time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Invalidate drops cached results, e.g. after datasets were refreshed.
func (s *Server) Invalidate() {
	s.cacheMu.Lock()
	s.cache = make(map[int]cachedResult)
	s.cacheMu.Unlock()
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="holical", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/api/occurrences", s.handleOccurrences)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// GET /calendar.ics?year=2024
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, ok := s.yearParam(w, r)
	if !ok {
		return
	}
	c, err := s.result(year)
	if err != nil {
		appLog.Error("calendar generation failed", err, "year", year)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="holical-`+strconv.Itoa(year)+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(c.body))
}

// GET /api/occurrences?year=2024
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	year, ok := s.yearParam(w, r)
	if !ok {
		return
	}
	c, err := s.result(year)
	if err != nil {
		appLog.Error("calendar generation failed", err, "year", year)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dtos := make([]occurrenceDTO, 0, len(c.res.Occurrences))
	for _, occ := range c.res.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			EventID:     occ.EventID,
			UID:         occ.UID,
			Title:       occ.Title,
			Description: occ.Description,
			AllDay:      occ.AllDay,
			Date:        occ.Date.Format(time.DateOnly),
			Raw:         occ.Raw.Format(time.DateOnly),
			Shifted:     occ.Shifted(),
			Start:       occ.Date,
		})
	}

	writeJSON(w, http.StatusOK, occurrencesResponse{
		Year:        year,
		TimeZone:    s.gen.Location().String(),
		GeneratedAt: c.res.GeneratedAt,
		Occurrences: dtos,
	})
}

// yearParam reads ?year=, defaulting to the current year. Writes a 400 and
// returns false for anything unparsable or implausible.
func (s *Server) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return 0, false
	}
	q := r.URL.Query().Get("year")
	if q == "" {
		return s.gen.CurrentYear(), true
	}
	year, err := strconv.Atoi(q)
	if err != nil || year < 1900 || year > 9999 {
		writeError(w, http.StatusBadRequest, "invalid year")
		return 0, false
	}
	return year, true
}

func (s *Server) result(year int) (cachedResult, error) {
	now := s.now()

	s.cacheMu.RLock()
	c, ok := s.cache[year]
	s.cacheMu.RUnlock()
	if ok && now.Sub(c.updatedAt) < resultCacheTTL {
		return c, nil
	}

	res, err := s.gen.Generate(year)
	if err != nil {
		return cachedResult{}, err
	}
	c = cachedResult{
		res:       res,
		body:      res.Calendar.Serialize(),
		updatedAt: now,
	}

	s.cacheMu.Lock()
	s.cache[year] = c
	s.cacheMu.Unlock()
	return c, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
