package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yuzu/receptionist/internal/auth"
)

// NewRouter wires the provider callbacks, operator endpoints and probes.
// monitorWS may be nil when the live feed is not served.
func NewRouter(h *Handlers, monitorWS http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.HandleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/voice/outbound", func(r chi.Router) {
		if h.cfg.Twilio.ValidateSignature {
			r.Use(auth.TwilioSignature(h.cfg.Twilio.AuthToken, h.cfg.Server.PublicURL, h.log))
		}
		r.Post("/intro", h.HandleIntro)
		r.Post("/process", h.HandleProcess)
		r.Post("/name", h.HandleName)
		r.Post("/status", h.HandleStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireMonitor(h.cfg.Monitor.TokenSecret, h.cfg.Monitor.TokenSkewSecs))
		r.Get("/calls/{callSid}", h.HandleGetCall)
		r.Get("/calls/{callSid}/events", h.HandleListEvents)
		if monitorWS != nil {
			r.Get("/ws/monitor", monitorWS)
		}
	})

	return r
}
