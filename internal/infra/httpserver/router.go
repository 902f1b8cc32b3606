package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	appai "github.com/bryanwahyu/sonarscan-api/internal/application/ai"
	appscans "github.com/bryanwahyu/sonarscan-api/internal/application/scans"
	domai "github.com/bryanwahyu/sonarscan-api/internal/domain/ai"
	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
	"github.com/bryanwahyu/sonarscan-api/internal/middleware"
)

// Deps are the collaborators of the HTTP surface. Insights, Health and
// Limiter are optional.
type Deps struct {
	Scans    *appscans.Service
	Insights *appai.Service
	Health   map[string]middleware.HealthChecker
	Limiter  *middleware.RateLimiter
	Logger   *zap.Logger

	SonarHost      string
	CORSOrigins    []string
	MaxUploadBytes int64
}

type Router struct {
	scansSvc  *appscans.Service
	aiSvc     *appai.Service
	logger    *zap.Logger
	sonarHost string
	maxUpload int64
}

const defaultMaxUpload = 256 << 20

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	r := &Router{
		scansSvc:  d.Scans,
		aiSvc:     d.Insights,
		logger:    logger,
		sonarHost: d.SonarHost,
		maxUpload: maxUpload,
	}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(middleware.Logging(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.TokenHeader},
		MaxAge:         300,
	}))

	mux.Get("/test", r.handleTest)
	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.SonarToken(r.scansSvc.Authorize))

		scan := r.wrap(r.handleScan)
		if d.Limiter != nil {
			rt.With(middleware.RateLimitMiddleware(d.Limiter)).Post("/scan", scan)
		} else {
			rt.Post("/scan", scan)
		}
		rt.Get("/report/{project_key}", r.wrap(r.handleReport))
		rt.Get("/report/{project_key}/insights", r.wrap(r.handleInsights))
		rt.Get("/scans", r.wrap(r.handleHistory))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// errorBody is the JSON error shape; diagnostic fields only appear on 500s.
// Scanner streams are pointers so a failed scan or clone always carries both
// keys, even when one stream is empty.
type errorBody struct {
	Error         string  `json:"error"`
	Details       string  `json:"details,omitempty"`
	ScannerStdout *string `json:"scanner_stdout,omitempty"`
	ScannerStderr *string `json:"scanner_stderr,omitempty"`
}

func (b *errorBody) withStreams(stdout, stderr string) {
	b.ScannerStdout = &stdout
	b.ScannerStderr = &stderr
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}

		var de *domain.Error
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &de):
			status, body := domainError(de)
			writeJSON(w, status, body)
		case errors.Is(err, domai.ErrDisabled):
			writeJSON(w, http.StatusNotImplemented, errorBody{Error: err.Error()})
		case errors.Is(err, domai.ErrQuotaExceeded):
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "ai quota exceeded"})
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: "Request body too large (limit " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes)",
			})
		default:
			r.logger.Error("unhandled error",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, errorBody{
				Error:   domain.MsgUnexpectedServer,
				Details: err.Error(),
			})
		}
	}
}

func domainError(e *domain.Error) (int, errorBody) {
	body := errorBody{Error: e.Message}
	switch e.Kind {
	case domain.KindUnauthorized:
		return http.StatusUnauthorized, body
	case domain.KindValidation, domain.KindDuplicate:
		return http.StatusBadRequest, body
	case domain.KindNotFound:
		return http.StatusNotFound, body
	case domain.KindCloneFailed:
		body.Details = e.Details
		body.withStreams(e.Stdout, e.Stderr)
		return http.StatusInternalServerError, body
	case domain.KindScanFailed:
		body.withStreams(e.Stdout, e.Stderr)
		return http.StatusInternalServerError, body
	case domain.KindExtractFailed:
		body.Details = e.Details
		return http.StatusInternalServerError, body
	default:
		body.Error = domain.MsgUnexpectedServer
		body.Details = e.Error()
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// GET /test
func (r *Router) handleTest(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Sonar API is running!",
		"sonar_host": r.sonarHost,
	})
}
