package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/brimobile1016/VEO3-NEW01/internal/http/handlers"
	"github.com/brimobile1016/VEO3-NEW01/internal/middleware"
)

// NewRouter wires the public generation surface and the token-gated admin
// routes.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
	)

	r.Get("/healthz", app.Health)

	r.Post("/generate-image", app.GenerateImage)
	r.Post("/generate-video", app.GenerateVideo)
	r.Get("/status/{jobID}", app.JobStatus)

	if !app.Config.UseSupabase() {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(app.Config.StoragePath)))
		r.Get("/static/*", fileServer.ServeHTTP)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", app.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(app.Config.AdminToken))
			r.Get("/files", app.AdminFiles)
			r.Get("/preview/{type}/{filename}", app.AdminPreview)
			r.Delete("/delete/{type}/{filename}", app.AdminDelete)
		})
	})

	return r
}
