package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// BorrowHandler handles the borrow-request workflow.
type BorrowHandler struct {
	DB      *sqlx.DB
	Period  time.Duration
	Metrics *metrics.Metrics
}

type returnRequest struct {
	Items []store.ReturnLine `json:"items" validate:"required,min=1,dive"`
}

type extendRequest struct {
	EndDate time.Time `json:"end_date" validate:"required"`
}

type extensionDecisionRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

// canView reports whether actor may see r: staff who oversee borrowing,
// the requester, and the manager of the requester's department.
func canView(actor model.Actor, r *model.BorrowRequest) bool {
	return auth.Can(actor.Role, auth.ViewAllBorrows) ||
		r.UserID == actor.UserID ||
		auth.CanApproveForDepartment(actor, r.Department)
}

func (h *BorrowHandler) transitioned(actor model.Actor, req *model.BorrowRequest, msg string, attrs ...any) {
	h.Metrics.Transition("borrow_request", req.Status)
	slog.Info(msg, append([]any{"user", actor.Username, "request_id", req.ID, "status", req.Status}, attrs...)...)
}

// List handles GET /api/borrow-requests?status=&mine=. Users without
// oversight only ever see their own requests.
func (h *BorrowHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	f := store.BorrowFilter{Status: r.URL.Query().Get("status")}
	if r.URL.Query().Get("mine") == "true" || !auth.Can(actor.Role, auth.ViewAllBorrows) {
		f.UserID = actor.UserID
	}
	reqs, err := store.ListBorrowRequests(r.Context(), h.DB, f)
	if err != nil {
		storeError(w, r, err, "list borrow requests")
		return
	}
	if reqs == nil {
		reqs = []model.BorrowRequest{}
	}
	jsonResponse(w, http.StatusOK, reqs)
}

// Create handles POST /api/borrow-requests.
func (h *BorrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in store.BorrowInput
	if !decodeValid(w, r, &in) {
		return
	}
	actor := actorFrom(r)
	req, err := store.CreateBorrowRequest(r.Context(), h.DB, actor, in)
	if err != nil {
		storeError(w, r, err, "create borrow request")
		return
	}
	h.transitioned(actor, req, "borrow request created", "lines", len(req.Items))
	jsonResponse(w, http.StatusCreated, req)
}

// Get handles GET /api/borrow-requests/{id}.
func (h *BorrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	req, err := store.GetBorrowRequest(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get borrow request")
		return
	}
	if !canView(actorFrom(r), req) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Approve handles POST /api/borrow-requests/{id}/approve.
func (h *BorrowHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	actor := actorFrom(r)
	req, err := store.ApproveBorrowRequest(r.Context(), h.DB, actor, id, h.Period)
	if err != nil {
		storeError(w, r, err, "approve borrow request")
		return
	}
	if req.Status == model.BorrowActive {
		h.Metrics.StockOperation(model.MovementBorrow)
	}
	h.transitioned(actor, req, "borrow request approved")
	jsonResponse(w, http.StatusOK, req)
}

// Reject handles POST /api/borrow-requests/{id}/reject.
func (h *BorrowHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeValid(w, r, &body) {
		return
	}
	actor := actorFrom(r)
	req, err := store.RejectBorrowRequest(r.Context(), h.DB, actor, id, body.Reason)
	if err != nil {
		storeError(w, r, err, "reject borrow request")
		return
	}
	h.transitioned(actor, req, "borrow request rejected", "reason", body.Reason)
	jsonResponse(w, http.StatusOK, req)
}

// Cancel handles POST /api/borrow-requests/{id}/cancel.
func (h *BorrowHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	actor := actorFrom(r)
	req, err := store.CancelBorrowRequest(r.Context(), h.DB, actor, id)
	if err != nil {
		storeError(w, r, err, "cancel borrow request")
		return
	}
	h.transitioned(actor, req, "borrow request cancelled")
	jsonResponse(w, http.StatusOK, req)
}

// Complete handles POST /api/borrow-requests/{id}/complete. Lines default
// to the complete action; a line may still ask to be seeded.
func (h *BorrowHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.processReturn(w, r, store.ReturnComplete)
}

// Seed handles POST /api/borrow-requests/{id}/seed.
func (h *BorrowHandler) Seed(w http.ResponseWriter, r *http.Request) {
	h.processReturn(w, r, store.ReturnSeed)
}

func (h *BorrowHandler) processReturn(w http.ResponseWriter, r *http.Request, action string) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	var body returnRequest
	if !decodeValid(w, r, &body) {
		return
	}
	for i := range body.Items {
		if body.Items[i].Action == "" {
			body.Items[i].Action = action
		}
	}
	actor := actorFrom(r)
	req, err := store.ProcessBorrowReturn(r.Context(), h.DB, actor, id, body.Items)
	if err != nil {
		storeError(w, r, err, "process return")
		return
	}
	for _, line := range body.Items {
		h.Metrics.StockOperation(line.Action)
	}
	h.transitioned(actor, req, "borrow return processed", "action", action, "lines", len(body.Items))
	jsonResponse(w, http.StatusOK, req)
}

// Extend handles POST /api/borrow-requests/{id}/extend.
func (h *BorrowHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	var body extendRequest
	if !decodeValid(w, r, &body) {
		return
	}
	actor := actorFrom(r)
	req, err := store.RequestExtension(r.Context(), h.DB, actor, id, body.EndDate)
	if err != nil {
		storeError(w, r, err, "request extension")
		return
	}
	h.transitioned(actor, req, "borrow extension requested", "end_date", body.EndDate)
	jsonResponse(w, http.StatusOK, req)
}

// DecideExtension handles POST /api/borrow-requests/{id}/extension.
func (h *BorrowHandler) DecideExtension(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "borrow request")
	if !ok {
		return
	}
	var body extensionDecisionRequest
	if !decodeValid(w, r, &body) {
		return
	}
	actor := actorFrom(r)
	req, err := store.DecideExtension(r.Context(), h.DB, actor, id, body.Action == "approve")
	if err != nil {
		storeError(w, r, err, "decide extension")
		return
	}
	h.transitioned(actor, req, "borrow extension decided", "decision", body.Action)
	jsonResponse(w, http.StatusOK, req)
}
