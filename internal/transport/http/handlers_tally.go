package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	tallymodels "flock/internal/tally/models"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

type talliesResponse struct {
	Skipped bool                 `json:"skipped,omitempty"`
	Tallies []*tallymodels.Tally `json:"tallies"`
}

func (h *Handler) handleGenerateTallies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[GenerateTalliesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	tallies, err := h.svc.Tallies.Generate(ctx, programID, req.Count)
	if err != nil {
		h.fail(w, r, "generate tallies failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, talliesResponse{Skipped: len(tallies) == 0, Tallies: tallies})
}

func (h *Handler) handleIssueTally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssueTallyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.svc.Tallies.Issue(ctx, tallymodels.IssueRequest{
		ProgramID: programID,
		Code:      req.Code,
		PersonID:  req.PersonID,
		Source:    req.Source,
		IssuedBy:  requestcontext.OperatorID(ctx),
	})
	h.writeTally(w, r, "issue tally failed", t, err)
}

func (h *Handler) handleMapTally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[MapTallyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.svc.Tallies.Map(ctx, tallymodels.MapRequest{
		ProgramID: programID,
		Code:      chi.URLParam(r, "code"),
		PersonID:  req.PersonID,
		Source:    req.Source,
		MappedBy:  requestcontext.OperatorID(ctx),
	})
	h.writeTally(w, r, "map tally failed", t, err)
}

func (h *Handler) handleVoidTally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[VoidTallyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.svc.Tallies.Void(ctx, programID, chi.URLParam(r, "code"), req.Reason)
	h.writeTally(w, r, "void tally failed", t, err)
}

// writeTally reports a nil tally without error as a skipped operation.
func (h *Handler) writeTally(w http.ResponseWriter, r *http.Request, msg string, t *tallymodels.Tally, err error) {
	if err != nil {
		h.fail(w, r, msg, err)
		return
	}
	if t == nil {
		httputil.WriteJSON(w, http.StatusOK, skipped{Skipped: true})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleListTallies(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tallies, err := h.svc.Tallies.List(r.Context(), programID)
	if err != nil {
		h.fail(w, r, "list tallies failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, talliesResponse{Tallies: tallies})
}

func (h *Handler) handleGetTally(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := h.svc.Tallies.Get(r.Context(), programID, chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "get tally failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleTallySummary(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sum, err := h.svc.Tallies.Summary(r.Context(), programID)
	if err != nil {
		h.fail(w, r, "tally summary failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}
