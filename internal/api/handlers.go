package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"yuzu/receptionist/internal/config"
	"yuzu/receptionist/internal/dialogue"
	"yuzu/receptionist/internal/events"
	"yuzu/receptionist/internal/health"
	"yuzu/receptionist/internal/speech"
	"yuzu/receptionist/internal/store"
)

// Dialogue is the call controller the provider callbacks drive.
type Dialogue interface {
	Intro(ctx context.Context, callSid, from string) dialogue.Result
	Turn(ctx context.Context, ev dialogue.TurnEvent) dialogue.Result
	Name(ctx context.Context, ev dialogue.TurnEvent) dialogue.Result
	End(ctx context.Context, callSid, status string)
}

// Readiness reports whether the service can take calls.
type Readiness interface {
	Ready(ctx context.Context) health.HealthStatus
}

// terminalStatuses end a call; the session is evicted when one arrives.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

type Handlers struct {
	cfg    config.Config
	dlg    Dialogue
	store  store.Store
	events *events.Log
	render *speech.Renderer
	ready  Readiness
	log    *zap.Logger
}

func NewHandlers(cfg config.Config, dlg Dialogue, st store.Store, ev *events.Log, ready Readiness, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		cfg:    cfg,
		dlg:    dlg,
		store:  st,
		events: ev,
		render: speech.NewRenderer(speech.Voice{
			Name:          cfg.Voice.Name,
			Language:      cfg.Voice.Language,
			Rate:          cfg.Voice.Rate,
			SpeechTimeout: cfg.Voice.SpeechTimeout,
		}, cfg.Server.PublicURL),
		ready: ready,
		log:   log,
	}
}

// callForm parses a provider callback; ok is false when a response was
// already written.
func (h *Handlers) callForm(w http.ResponseWriter, r *http.Request) (callSid string, ok bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return "", false
	}
	callSid = r.PostForm.Get("CallSid")
	if callSid == "" {
		http.Error(w, "missing CallSid", http.StatusBadRequest)
		return "", false
	}
	return callSid, true
}

func (h *Handlers) writeTwiML(w http.ResponseWriter, r *http.Request, res dialogue.Result) {
	doc, err := h.render.Render(res)
	if err != nil {
		h.log.Error("twiml render failed", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
		doc = h.render.Fallback()
	}
	w.Header().Set("Content-Type", speech.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (h *Handlers) HandleIntro(w http.ResponseWriter, r *http.Request) {
	callSid, ok := h.callForm(w, r)
	if !ok {
		return
	}
	h.writeTwiML(w, r, h.dlg.Intro(r.Context(), callSid, r.PostForm.Get("From")))
}

func (h *Handlers) turnEvent(r *http.Request, callSid string) dialogue.TurnEvent {
	return dialogue.TurnEvent{
		CallSid:   callSid,
		From:      r.PostForm.Get("From"),
		Utterance: r.PostForm.Get("SpeechResult"),
	}
}

func (h *Handlers) HandleProcess(w http.ResponseWriter, r *http.Request) {
	callSid, ok := h.callForm(w, r)
	if !ok {
		return
	}
	h.writeTwiML(w, r, h.dlg.Turn(r.Context(), h.turnEvent(r, callSid)))
}

func (h *Handlers) HandleName(w http.ResponseWriter, r *http.Request) {
	callSid, ok := h.callForm(w, r)
	if !ok {
		return
	}
	h.writeTwiML(w, r, h.dlg.Name(r.Context(), h.turnEvent(r, callSid)))
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	callSid, ok := h.callForm(w, r)
	if !ok {
		return
	}
	status := r.PostForm.Get("CallStatus")
	if terminalStatuses[status] {
		h.dlg.End(r.Context(), callSid, status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleGetCall(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")
	sess, err := h.store.Get(r.Context(), callSid)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidID) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("session lookup failed", zap.String("call_sid", callSid), zap.Error(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")
	writeJSON(w, http.StatusOK, map[string]any{
		"call_sid": callSid,
		"events":   h.events.List(callSid),
	})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := h.ready.Ready(r.Context())
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
