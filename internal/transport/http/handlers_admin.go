package httptransport

import (
	"net/http"

	"flock/internal/settings"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Settings.Get(r.Context())
	if err != nil {
		h.fail(w, r, "load settings failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

func (h *Handler) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patch, ok := httputil.DecodeAndPrepare[settings.Patch](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cfg, err := h.svc.Settings.Update(ctx, *patch)
	if err != nil {
		h.fail(w, r, "update settings failed", err)
		return
	}
	h.logger.InfoContext(ctx, "settings_updated",
		"request_id", requestcontext.RequestID(ctx),
		"operator_id", requestcontext.OperatorID(ctx).String(),
		"event", "settings_updated",
		"log_type", "audit",
	)
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

// Automation results already carry skipped and error fields, so they are
// always written with 200.
func (h *Handler) handleRunAbsentee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, h.svc.Absentee.Run(ctx, requestcontext.Now(ctx)))
}

func (h *Handler) handleRunBirthday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, h.svc.Birthday.Run(ctx, requestcontext.Now(ctx)))
}
