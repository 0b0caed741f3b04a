package httptransport

import (
	"net/http"
	"strconv"
	"time"

	attendancemodels "flock/internal/attendance/models"
	programmodels "flock/internal/program/models"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

const dateLayout = "2006-01-02"

func (h *Handler) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[programmodels.CreateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.svc.Programs.Create(ctx, *req)
	if err != nil {
		h.fail(w, r, "create program failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// handleListPrograms lists everything, or a window when from and to are given
// as YYYY-MM-DD. Repeat type to filter by program type.
func (h *Handler) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" && len(q["type"]) == 0 {
		programs, err := h.svc.Programs.List(r.Context())
		if err != nil {
			h.fail(w, r, "list programs failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, programs)
		return
	}

	window := programmodels.WindowQuery{Types: q["type"]}
	var err error
	if window.From, err = parseDate(from, time.Time{}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if window.To, err = parseDate(to, requestcontext.Now(r.Context())); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if raw := q.Get("include_cancelled"); raw != "" {
		window.IncludeCancelled, _ = strconv.ParseBool(raw)
	}
	programs, err := h.svc.Programs.ListInWindow(r.Context(), window)
	if err != nil {
		h.fail(w, r, "list programs failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, programs)
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, "dates must be YYYY-MM-DD")
	}
	return t, nil
}

func (h *Handler) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Programs.Get(r.Context(), programID)
	if err != nil {
		h.fail(w, r, "get program failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleUpdateProgramStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ProgramStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.svc.Programs.UpdateStatus(ctx, programID, req.Status)
	if err != nil {
		h.fail(w, r, "update program status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[MarkAttendanceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	rec, err := h.svc.Attendance.MarkAttendance(ctx, attendancemodels.MarkRequest{
		ProgramID:  programID,
		PersonID:   req.PersonID,
		Status:     req.Status,
		Timestamp:  req.Timestamp,
		RecordedBy: requestcontext.OperatorID(ctx),
	})
	if err != nil {
		h.fail(w, r, "mark attendance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleListProgramAttendance(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.svc.Attendance.ListByProgram(r.Context(), programID)
	if err != nil {
		h.fail(w, r, "list attendance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

func (h *Handler) handleAttendanceSummary(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sum, err := h.svc.Attendance.Summary(r.Context(), programID)
	if err != nil {
		h.fail(w, r, "attendance summary failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// handleArrivalBuckets groups present arrivals; width is a Go duration and
// defaults to 15m.
func (h *Handler) handleArrivalBuckets(w http.ResponseWriter, r *http.Request) {
	programID, err := programIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	width := 15 * time.Minute
	if raw := r.URL.Query().Get("width"); raw != "" {
		if width, err = time.ParseDuration(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "width must be a duration such as 15m"))
			return
		}
	}
	buckets, err := h.svc.Attendance.ArrivalBuckets(r.Context(), programID, width)
	if err != nil {
		h.fail(w, r, "arrival buckets failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, buckets)
}
