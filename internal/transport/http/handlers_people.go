package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	personmodels "flock/internal/person/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

func (h *Handler) handleRegisterPerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[personmodels.RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.svc.People.Register(ctx, *req)
	if err != nil {
		h.fail(w, r, "register person failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// handleListPeople supports category, guest_type, member_rating and
// ready_for_promotion query filters.
func (h *Handler) handleListPeople(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := personmodels.ListFilter{
		Category:     personmodels.Category(q.Get("category")),
		GuestType:    personmodels.GuestType(q.Get("guest_type")),
		MemberRating: personmodels.MemberRating(q.Get("member_rating")),
	}
	if raw := q.Get("ready_for_promotion"); raw != "" {
		ready, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "ready_for_promotion must be a boolean"))
			return
		}
		filter.ReadyForPromotion = &ready
	}
	people, err := h.svc.People.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list people failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, people)
}

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.People.Get(r.Context(), personID)
	if err != nil {
		h.fail(w, r, "get person failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdatePersonalData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[personmodels.PersonalData](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.svc.People.UpdatePersonalData(ctx, personID, *req)
	if err != nil {
		h.fail(w, r, "update personal data failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSetDoNotContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DoNotContactRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.svc.People.SetDoNotContact(ctx, personID, req.DoNotContact, req.Reason)
	if err != nil {
		h.fail(w, r, "set do-not-contact failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleApplyEvolution(w http.ResponseWriter, r *http.Request) {
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.People.ApplyEvolution(r.Context(), personID)
	if err != nil {
		h.fail(w, r, "apply evolution failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleRecomputeAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.People.RecomputeAll(r.Context())
	if err != nil {
		h.fail(w, r, "recompute failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"recomputed": n})
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PromoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.svc.People.Promote(ctx, personID, req.Membership, req.Force)
	if err != nil {
		h.fail(w, r, "promotion rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleListPersonAttendance(w http.ResponseWriter, r *http.Request) {
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.svc.Attendance.ListByPerson(r.Context(), personID)
	if err != nil {
		h.fail(w, r, "list person attendance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) handleListFollowUps(w http.ResponseWriter, r *http.Request) {
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.svc.FollowUps.List(r.Context(), personID)
	if err != nil {
		h.fail(w, r, "list follow-ups failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCompleteFollowUp(w http.ResponseWriter, r *http.Request) {
	personID, err := personIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	followUpID := id.FollowUpID(chi.URLParam(r, "followUpID"))
	f, err := h.svc.FollowUps.Complete(r.Context(), personID, followUpID)
	if err != nil {
		h.fail(w, r, "complete follow-up failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}
