package collector

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/inetanalyzer/agent/internal/report"
)

const (
	defaultCapacity  = 100
	defaultListLimit = 20
)

// transparentGIF is a 1x1 transparent GIF served to fetch probes.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Config controls the development collector.
type Config struct {
	Addr string
	// ConfigPath is served at /config when set.
	ConfigPath string
	// SignaturePath is served at /config.minisig when set.
	SignaturePath string
	Capacity      int
	MachineName   string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger *zerolog.Logger
	Store  *ReportStore
	Now    func() time.Time
}

// Server is a local stand-in for the configuration and collection service.
// It serves a configuration document, answers fetch probes and accepts
// report uploads.
type Server struct {
	*http.Server
	cfg    Config
	store  *ReportStore
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs the collector HTTP server.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.MachineName == "" {
		cfg.MachineName, _ = os.Hostname()
	}
	s := &Server{
		cfg:    cfg,
		store:  deps.Store,
		logger: zerolog.Nop(),
		now:    deps.Now,
	}
	if deps.Logger != nil {
		s.logger = *deps.Logger
	}
	if s.store == nil {
		s.store = NewReportStore(cfg.Capacity)
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/config", s.fileHandler(cfg.ConfigPath, "application/json")).Methods(http.MethodGet)
	r.HandleFunc("/config.minisig", s.fileHandler(cfg.SignaturePath, "text/plain")).Methods(http.MethodGet)
	r.HandleFunc("/reports", s.listHandler).Methods(http.MethodGet)
	r.HandleFunc("/reports/stats", s.statsHandler).Methods(http.MethodGet)
	r.PathPrefix("/").Queries("DATA", "{data}").HandlerFunc(s.uploadHandler).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(s.objectHandler).Methods(http.MethodGet)

	s.Server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Reports returns the store backing the server.
func (s *Server) Reports() *ReportStore {
	return s.store
}

func (s *Server) fileHandler(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if path == "" {
			http.NotFound(w, r)
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Error().Err(err).Str("path", path).Msg("read served file failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	}
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	env, err := report.ParseUploadValues(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if env.MonitorID == "" || env.RunID == "" {
		http.Error(w, "MonitorId and rid are required", http.StatusBadRequest)
		return
	}
	env.ReceivedAt = s.now().UTC()
	if s.store.Add(env) {
		s.logger.Debug().Msg("report store full, evicted oldest upload")
	}
	s.logger.Info().
		Str("monitor_id", env.MonitorID).
		Str("rid", env.RunID).
		Str("tag", env.Tag).
		Int("items", len(env.Data)).
		Msg("report received")
	s.writeObject(w, r)
}

func (s *Server) objectHandler(w http.ResponseWriter, r *http.Request) {
	s.writeObject(w, r)
}

// writeObject answers with the probe object and the diagnostic headers a
// production edge would attach.
func (s *Server) writeObject(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Cache-Control", "no-store")
	h.Set("X-MachineName", s.cfg.MachineName)
	h.Set("X-FrontEnd", "inetanalyzer-collector")
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		h.Set("X-UserHostAddress", host)
	}
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			h.Set("X-ServerIP", host)
		}
	}
	_, _ = w.Write(transparentGIF)
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	items := s.store.List(limit)
	if monitor := strings.TrimSpace(r.URL.Query().Get("monitor_id")); monitor != "" {
		filtered := items[:0]
		for _, env := range items {
			if env.MonitorID == monitor {
				filtered = append(filtered, env)
			}
		}
		items = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Items any `json:"items"`
	}{Items: items})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.store.Stats())
}
