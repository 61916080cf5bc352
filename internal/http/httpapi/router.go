package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"scenegen/internal/http/handlers"
	"scenegen/internal/middleware"
)

// Options carries the middleware settings for the router.
type Options struct {
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Geo(opts.CountryLookup),
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)
		r.Get("/progress/{job_id}", app.Progress)
		r.Get("/images/{filename}", app.Image)
		r.Post("/download-all", app.DownloadAll)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/generate-from-script", app.GenerateFromScript)
			r.Post("/generate-from-file", app.GenerateFromFile)
			r.Post("/generate-images", app.GenerateImages)
			r.Post("/uploads", app.Upload)
		})
	})

	return r
}
