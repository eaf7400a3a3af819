package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"clasutil/models"
	"clasutil/services"
	"clasutil/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

// Route paths.
const (
	RouteDashboard    = "/"
	RouteData         = "/data"
	RouteHealth       = "/health"
	RouteObservations = "/observations"
)

// StatusQuerier is the read side the handlers depend on.
type StatusQuerier interface {
	ListStatuses(ctx context.Context, filters models.FilterSet) (*models.StatusReport, error)
	MapStatuses(ctx context.Context, filters models.FilterSet) (map[string]models.RoomEntry, error)
}

// ObservationRecorder is the write side used by the ingest endpoint.
type ObservationRecorder interface {
	Record(ctx context.Context, in services.ObservationInput) (*models.Observation, error)
}

// Pinger reports backend reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server hosts the dashboard, the data endpoint and the ingest endpoint.
type Server struct {
	statuses StatusQuerier
	recorder ObservationRecorder
	pinger   Pinger
	logger   *utils.Logger
	tmpl     *template.Template
	start    time.Time
}

// New parses the dashboard template and returns a Server. recorder and pinger
// may be nil, in which case the matching routes are not registered.
func New(statuses StatusQuerier, recorder ObservationRecorder, pinger Pinger, logger *utils.Logger) (*Server, error) {
	tmpl, err := template.New("dashboard.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, fmt.Errorf("server: parse templates: %w", err)
	}
	return &Server{
		statuses: statuses,
		recorder: recorder,
		pinger:   pinger,
		logger:   logger,
		tmpl:     tmpl,
		start:    time.Now(),
	}, nil
}

// Routes builds the router wrapped in recovery, access logging and CORS.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc(RouteDashboard, s.handleDashboard).Methods(http.MethodGet)
	router.HandleFunc(RouteData, s.handleData).Methods(http.MethodGet)
	router.HandleFunc(RouteHealth, s.handleHealth).Methods(http.MethodGet)
	if s.recorder != nil {
		router.HandleFunc(RouteObservations, s.handleIngest).Methods(http.MethodPost)
	}

	var h http.Handler = router
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(h)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info("[http] %s %s %d %dB %v",
		p.Request.Method, p.URL.RequestURI(), p.StatusCode, p.Size, time.Since(p.TimeStamp).Round(time.Microsecond))
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *utils.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[http] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("[http] Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

type recoveryLogger struct {
	logger *utils.Logger
}

func (r recoveryLogger) Println(v ...interface{}) {
	r.logger.Error("[http] Recovered from panic: %s", strings.TrimSpace(fmt.Sprintln(v...)))
}

var templateFuncs = template.FuncMap{
	"statusClass": func(status string) string {
		switch status {
		case models.StatusOccupied:
			return "occupied"
		case models.StatusEmpty:
			return "empty"
		default:
			return "other"
		}
	},
	"fmtTime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04:05 UTC")
	},
}
