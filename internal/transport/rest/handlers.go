package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/allocation"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/domain"
	appCtx "github.com/baechuer/real-time-ressys/services/booking-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/service"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

// HealthCheck reports one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handler struct {
	svc    *service.BookingService
	health []HealthCheck
}

func NewHandler(svc *service.BookingService, checks ...HealthCheck) *Handler {
	return &Handler{svc: svc, health: checks}
}

type requestView struct {
	OptionID    uuid.UUID           `json:"option_id"`
	UserID      uuid.UUID           `json:"user_id"`
	RequestID   int64               `json:"request_id,omitempty"`
	RequestedAt *time.Time          `json:"requested_at,omitempty"`
	Rank        int                 `json:"rank"`
	Status      domain.RankedStatus `json:"status"`
	Message     string              `json:"message,omitempty"`
}

const overCapacityMessage = "seat held beyond the option's limits; contact an administrator"

func statusMessage(st domain.RankedStatus) string {
	if st == domain.StatusOverCapacity {
		return overCapacityMessage
	}
	return ""
}

type optionView struct {
	OptionID         uuid.UUID  `json:"option_id"`
	Capacity         int        `json:"capacity"`
	OverflowCapacity int        `json:"overflow_capacity"`
	Unlimited        bool       `json:"unlimited"`
	ClosingTime      *time.Time `json:"closing_time,omitempty"`
}

func toRequestView(r allocation.Ranked) requestView {
	at := r.Request.RequestedAt
	return requestView{
		OptionID:    r.Request.OptionID,
		UserID:      r.Request.UserID,
		RequestID:   r.Request.ID,
		RequestedAt: &at,
		Rank:        r.Rank,
		Status:      r.Status,
		Message:     statusMessage(r.Status),
	}
}

func toRequestViews(in []allocation.Ranked) []requestView {
	out := make([]requestView, 0, len(in))
	for _, r := range in {
		out = append(out, toRequestView(r))
	}
	return out
}

func toStatusView(v service.StatusView) requestView {
	return requestView{
		OptionID:    v.OptionID,
		UserID:      v.UserID,
		RequestID:   v.RequestID,
		RequestedAt: v.RequestedAt,
		Rank:        v.Rank,
		Status:      v.Status,
		Message:     statusMessage(v.Status),
	}
}

func toOptionView(o domain.BookingOption) optionView {
	return optionView{
		OptionID:         o.ID,
		Capacity:         o.Capacity,
		OverflowCapacity: o.OverflowCapacity,
		Unlimited:        o.Unlimited(),
		ClosingTime:      o.ClosingTime,
	}
}

func toCancelView(res service.CancelResult) map[string]any {
	out := map[string]any{
		"removed": requestView{
			OptionID:    res.Removed.OptionID,
			UserID:      res.Removed.UserID,
			RequestID:   res.Removed.ID,
			RequestedAt: &res.Removed.RequestedAt,
			Status:      domain.StatusNotBooked,
		},
		"prev_status": res.PrevStatus,
	}
	if res.Promoted != nil {
		out["promoted"] = toRequestView(*res.Promoted)
	}
	return out
}

// respond writes payload in the success envelope, stamped with the request id.
func respond(w http.ResponseWriter, r *http.Request, status int, payload any, warnings ...response.Warning) {
	response.Data(w, status, payload, response.Meta{
		RequestID: appCtx.GetRequestID(r.Context()),
		Warnings:  warnings,
	})
}

// overCapacity warns when n requests hold seats beyond the option's limits.
func overCapacity(n int) []response.Warning {
	if n == 0 {
		return nil
	}
	return []response.Warning{{Code: "booking.over_capacity", Message: overCapacityMessage, Count: n}}
}

func countOverCapacity[T any](items []T, status func(T) domain.RankedStatus) int {
	n := 0
	for _, it := range items {
		if status(it) == domain.StatusOverCapacity {
			n++
		}
	}
	return n
}

// pathUUID writes a 400 and returns false when the URL param is not a uuid.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil || id == uuid.Nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid "+name, map[string]string{
			name: "must be a valid uuid",
		})
		return uuid.Nil, false
	}
	return id, true
}

func mustAuth(w http.ResponseWriter, r *http.Request) (AuthContext, bool) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
	}
	return auth, ok
}

func parseUserIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		// already validated as uuid
		out = append(out, uuid.MustParse(s))
	}
	return out
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{}
	status := http.StatusOK
	for _, c := range h.health {
		if err := c.Check(ctx); err != nil {
			deps[c.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[c.Name] = "up"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	response.JSON(w, status, map[string]any{"status": state, "dependencies": deps})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	res, err := h.svc.SubmitRequest(r.Context(), optionID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, toRequestView(allocation.Ranked{
		Request: res.Request,
		Rank:    res.Rank,
		Status:  res.Status,
	}))
}

func (h *Handler) CancelMine(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	res, err := h.svc.CancelRequest(r.Context(), auth.Actor(), optionID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCancelView(res))
}

func (h *Handler) CancelFor(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	res, err := h.svc.CancelRequest(r.Context(), auth.Actor(), optionID, userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCancelView(res))
}

func (h *Handler) CancelMany(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	var req cancelManyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "validation failed", validationMeta(err))
		return
	}

	res, err := h.svc.CancelRequests(r.Context(), auth.Actor(), optionID, parseUserIDs(req.UserIDs))
	if err != nil {
		handleErr(w, r, err)
		return
	}

	canceled := make([]map[string]any, 0, len(res.Canceled))
	for _, c := range res.Canceled {
		canceled = append(canceled, toCancelView(c))
	}
	missing := res.Missing
	if missing == nil {
		missing = []uuid.UUID{}
	}
	respond(w, r, http.StatusOK, map[string]any{
		"canceled": canceled,
		"missing":  missing,
	})
}

func (h *Handler) BookFor(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	var req bookForRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "validation failed", validationMeta(err))
		return
	}

	results, err := h.svc.BookForUsers(r.Context(), auth.Actor(), optionID, parseUserIDs(req.UserIDs), req.AllowOverbook)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	type itemError struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	type item struct {
		UserID uuid.UUID    `json:"user_id"`
		Result *requestView `json:"result,omitempty"`
		Error  *itemError   `json:"error,omitempty"`
	}

	items := make([]item, 0, len(results))
	for _, br := range results {
		it := item{UserID: br.UserID}
		if br.Err != nil {
			e := classify(br.Err)
			it.Error = &itemError{Code: e.code, Message: e.message}
		} else {
			v := toRequestView(allocation.Ranked{Request: br.Request, Rank: br.Rank, Status: br.Status})
			it.Result = &v
		}
		items = append(items, it)
	}
	over := countOverCapacity(results, func(br service.BookResult) domain.RankedStatus {
		if br.Err != nil {
			return ""
		}
		return br.Status
	})
	respond(w, r, http.StatusOK, map[string]any{"items": items}, overCapacity(over)...)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	v, err := h.svc.GetStatus(r.Context(), optionID, auth.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	var warn []response.Warning
	if v.Status == domain.StatusOverCapacity {
		warn = overCapacity(1)
	}
	respond(w, r, http.StatusOK, toStatusView(v), warn...)
}

func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}

	occ, err := h.svc.GetOccupancy(r.Context(), optionID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, occ, overCapacity(occ.OverCapacityCount)...)
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	l, err := h.svc.ListRanked(r.Context(), auth.Actor(), optionID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"option":    toOptionView(l.Option),
		"occupancy": l.Occupancy,
		"booked":    toRequestViews(l.Booked()),
		"waiting":   toRequestViews(l.Waiting()),
		"entries":   toRequestViews(l.Entries),
	}, overCapacity(l.Occupancy.OverCapacityCount)...)
}

func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	cur, err := decodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid cursor", nil)
		return
	}

	items, next, err := h.svc.ListMyRequests(r.Context(), auth.UserID, limit, cur)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	views := make([]requestView, 0, len(items))
	for _, it := range items {
		views = append(views, toStatusView(it))
	}
	over := countOverCapacity(items, func(v service.StatusView) domain.RankedStatus { return v.Status })
	respond(w, r, http.StatusOK, response.Page{
		Items:      views,
		NextCursor: encodeCursor(next),
	}, overCapacity(over)...)
}

func (h *Handler) UpsertOption(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	var req upsertOptionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "validation failed", validationMeta(err))
		return
	}

	opt := domain.BookingOption{
		ID:               optionID,
		Capacity:         *req.Capacity,
		OverflowCapacity: req.OverflowCapacity,
		ClosingTime:      req.ClosingTime,
	}
	ch, err := h.svc.UpsertOption(r.Context(), auth.Actor(), opt)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	status := http.StatusOK
	if ch.Created {
		status = http.StatusCreated
	}
	respond(w, r, status, map[string]any{
		"option":        toOptionView(ch.Option),
		"created":       ch.Created,
		"promoted":      toRequestViews(ch.Promoted),
		"over_capacity": toRequestViews(ch.OverCapacity),
	}, overCapacity(len(ch.OverCapacity))...)
}

func (h *Handler) DeleteOption(w http.ResponseWriter, r *http.Request) {
	optionID, ok := pathUUID(w, r, "optionID")
	if !ok {
		return
	}
	auth, ok := mustAuth(w, r)
	if !ok {
		return
	}

	removed, err := h.svc.DeleteOption(r.Context(), auth.Actor(), optionID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"removed_requests": len(removed)})
}
