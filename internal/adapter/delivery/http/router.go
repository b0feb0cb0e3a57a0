// Package http provides the HTTP delivery layer: the JSON link API, the
// redirect endpoint and the health probe.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/vadimbarashkov/tinylink/pkg/middleware/recoverer"
)

const defaultDocsPath = "./docs/swagger.yml"

type routerOptions struct {
	allowedOrigins []string
	docsPath       string
	requestTimeout time.Duration
	startedAt      time.Time
}

type RouterOption func(*routerOptions)

func WithAllowedOrigins(origins []string) RouterOption {
	return func(o *routerOptions) {
		o.allowedOrigins = origins
	}
}

func WithDocsPath(path string) RouterOption {
	return func(o *routerOptions) {
		o.docsPath = path
	}
}

// WithRequestTimeout puts a deadline on every request context. Zero disables it.
func WithRequestTimeout(d time.Duration) RouterOption {
	return func(o *routerOptions) {
		o.requestTimeout = d
	}
}

// WithStartTime sets the instant the health probe counts uptime from.
func WithStartTime(t time.Time) RouterOption {
	return func(o *routerOptions) {
		o.startedAt = t
	}
}

// NewRouter builds the chi router for the link API, the health probe and the redirect route.
func NewRouter(logger *httplog.Logger, linkUseCase linkUseCase, opts ...RouterOption) *chi.Mux {
	o := routerOptions{
		allowedOrigins: []string{"https://*", "http://*"},
		docsPath:       defaultDocsPath,
		startedAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.allowedOrigins,
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.Handler(logger))
	r.Use(recoverer.New(logger.Logger))
	if o.requestTimeout > 0 {
		r.Use(middleware.Timeout(o.requestTimeout))
	}

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, o.docsPath)
	})

	r.Get("/health", handleHealth(linkUseCase, o.startedAt))

	// Browsers ask for it on every visit; it must never reach the store as a code.
	r.Get("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	validate, err := newValidator()
	if err != nil {
		panic(err)
	}
	h := newLinkHandler(linkUseCase, validate)

	r.Route("/api/links", func(r chi.Router) {
		r.Post("/", h.createLink)
		r.Get("/", h.listLinks)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", h.getLink)
			r.Delete("/", h.deleteLink)
		})
	})

	r.Get("/{code}", h.redirect)

	return r
}
