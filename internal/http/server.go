package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"symptom-triage/internal/auth"
	"symptom-triage/internal/core"
	"symptom-triage/internal/metrics"
	"symptom-triage/pkg"
)

// HospitalService searches and curates hospitals.
type HospitalService interface {
	Search(ctx context.Context, loc pkg.LatLng, specialty string, radiusMeters float64) []pkg.Hospital
	AddHospital(ctx context.Context, h pkg.NewHospital) (*pkg.HospitalRecord, error)
}

// Geocoder resolves addresses and names locations.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*pkg.LatLng, error)
	ReverseGeocode(ctx context.Context, loc pkg.LatLng) string
}

// KeyPool is the rotating credential pool.
type KeyPool interface {
	Status() (size, index int)
	SetKeys(ctx context.Context, keys []string) error
}

// Events delivers session-saved notifications.
type Events interface {
	Subscribe(sessionID string) (<-chan string, func())
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.Server.
type Server struct {
	router *chi.Mux
	chat   *core.ChatService
	log    *zap.Logger

	hospitals    HospitalService
	geocoder     Geocoder
	keys         KeyPool
	events       Events
	verifier     *auth.Verifier
	admins       map[string]struct{}
	staticDir    string
	corsOrigins  []string
	searchRadius float64
	supabase     bool
	keepAlive    time.Duration
}

// Options configure optional Server dependencies.
type Options func(*Server)

// WithHospitals enables hospital search and the add-hospital endpoint.
func WithHospitals(h HospitalService) Options {
	return func(s *Server) { s.hospitals = h }
}

// WithGeocoder enables the geocoding endpoints.
func WithGeocoder(g Geocoder) Options {
	return func(s *Server) { s.geocoder = g }
}

// WithKeyPool exposes the credential pool status and, for admins, key updates.
func WithKeyPool(k KeyPool) Options {
	return func(s *Server) { s.keys = k }
}

// WithEvents enables the session event stream.
func WithEvents(e Events) Options {
	return func(s *Server) { s.events = e }
}

// WithAuth enables bearer token checks on the session API.
func WithAuth(v *auth.Verifier) Options {
	return func(s *Server) { s.verifier = v }
}

// WithAdmins sets the comma separated token subjects allowed to replace the
// credential pool.  The anonymous user is never an admin.
func WithAdmins(subjects string) Options {
	return func(s *Server) {
		s.admins = make(map[string]struct{})
		for _, sub := range strings.Split(subjects, ",") {
			if sub = strings.TrimSpace(sub); sub != "" && sub != auth.AnonymousUser {
				s.admins[sub] = struct{}{}
			}
		}
	}
}

// WithStaticDir serves the single-page client from dir.
func WithStaticDir(dir string) Options {
	return func(s *Server) { s.staticDir = dir }
}

// WithCORS sets the allowed origins from a comma separated list.
func WithCORS(origins string) Options {
	return func(s *Server) {
		s.corsOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				s.corsOrigins = append(s.corsOrigins, o)
			}
		}
	}
}

// WithSearchRadius sets the default hospital search radius in meters.
func WithSearchRadius(m float64) Options {
	return func(s *Server) { s.searchRadius = m }
}

// WithSupabase marks the identity provider as configured in health output.
func WithSupabase(configured bool) Options {
	return func(s *Server) { s.supabase = configured }
}

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Options {
	return func(s *Server) { s.log = l }
}

// New builds the router.
func New(chat *core.ChatService, opts ...Options) *Server {
	r := chi.NewRouter()
	s := &Server{
		router:       r,
		chat:         chat,
		log:          zap.NewNop(),
		searchRadius: 25000,
		keepAlive:    25 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("http")

	r.Use(middleware.RequestID)
	r.Use(s.accessLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/test", s.handleTest)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(s.verifier, writeError))

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/latest", s.handleLatestSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/messages", s.handlePostMessage)
		r.Post("/sessions/{id}/answers", s.handlePostAnswer)
		r.Get("/sessions/{id}/hospitals", s.handleSessionHospitals)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)

		r.Post("/flash", s.handleFlash)

		r.Post("/hospitals", s.handleAddHospital)
		r.Get("/hospitals/search", s.handleSearchHospitals)

		r.Get("/geocode", s.handleGeocode)
		r.Get("/reverse-geocode", s.handleReverseGeocode)

		r.Get("/keys", s.handleKeyStatus)
		r.Put("/keys", s.handleSetKeys)
	})

	if s.staticDir != "" {
		r.Get("/*", spaHandler(s.staticDir))
	}
	return s
}

// ServeHTTP dispatches to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) isAdmin(r *http.Request) bool {
	_, ok := s.admins[auth.UserID(r.Context())]
	return ok
}

// accessLogger logs every request and records its duration.
func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			d := time.Since(start)
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Observe(d.Seconds())
			s.log.Info("access",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", d),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.corsOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// spaHandler serves files from dir and falls back to index.html for client
// side routes.
func spaHandler(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			index := filepath.Join(dir, "index.html")
			if _, err := os.Stat(index); err != nil {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, index)
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}
