package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// request logger after RequestID so the id lands in every line
	r.Use(RequestLogger(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.SubmitJob)
		r.Get("/{id}", h.GetJob)
		r.Post("/{id}/cancel", h.CancelJob)
		r.Get("/{id}/costs", h.GetJobCosts)
	})

	r.Route("/platforms", func(r chi.Router) {
		r.Get("/{domain}/policy", h.GetPlatformPolicy)
		r.Put("/{domain}/policy", h.SetPlatformPolicy)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
