package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// StockHandler handles ledger endpoints.
type StockHandler struct {
	DB      *sqlx.DB
	Metrics *metrics.Metrics
}

type addStockRequest struct {
	BoxID    int64  `json:"box_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Notes    string `json:"notes"`
}

type adjustStockRequest struct {
	Bucket model.Bucket `json:"bucket" validate:"required"`
	Delta  int          `json:"delta" validate:"required"`
	Notes  string       `json:"notes" validate:"required"`
}

type conditionRequest struct {
	Condition string `json:"condition" validate:"required"`
	Notes     string `json:"notes"`
}

type revertSeedRequest struct {
	Quantity int    `json:"quantity" validate:"gte=0"`
	Notes    string `json:"notes"`
}

// Add handles POST /api/items/{id}/stock.
func (h *StockHandler) Add(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	var req addStockRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	stock, err := store.AddStock(r.Context(), h.DB, actor, itemID, req.BoxID, req.Quantity, req.Notes)
	if err != nil {
		storeError(w, r, err, "add stock")
		return
	}
	h.Metrics.StockOperation(model.MovementIntake)
	slog.Info("stock added", "user", actor.Username, "item_id", itemID, "box_id", req.BoxID, "quantity", req.Quantity)
	jsonResponse(w, http.StatusCreated, stock)
}

// List handles GET /api/stock?item_id=&box_id=.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := store.ListStock(r.Context(), h.DB, store.StockFilter{
		ItemID: queryID(r, "item_id"),
		BoxID:  queryID(r, "box_id"),
	})
	if err != nil {
		storeError(w, r, err, "list stock")
		return
	}
	if rows == nil {
		rows = []model.ItemStock{}
	}
	jsonResponse(w, http.StatusOK, rows)
}

// Get handles GET /api/stock/{id}.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "stock")
	if !ok {
		return
	}
	s, err := store.GetStock(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get stock")
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// Adjust handles POST /api/stock/{id}/adjust.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "stock")
	if !ok {
		return
	}
	var req adjustStockRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	s, err := store.AdjustStock(r.Context(), h.DB, actor, id, req.Bucket, req.Delta, req.Notes)
	if err != nil {
		storeError(w, r, err, "adjust stock")
		return
	}
	h.Metrics.StockOperation(model.MovementAdjustment)
	slog.Info("stock adjusted", "user", actor.Username, "stock_id", id, "bucket", req.Bucket, "delta", req.Delta)
	if s == nil {
		jsonMessage(w, "stock row emptied and removed")
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// UpdateCondition handles PUT /api/stock/{id}/condition.
func (h *StockHandler) UpdateCondition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "stock")
	if !ok {
		return
	}
	var req conditionRequest
	if !decodeValid(w, r, &req) {
		return
	}
	s, err := store.UpdateStockCondition(r.Context(), h.DB, id, req.Condition, req.Notes)
	if err != nil {
		storeError(w, r, err, "update condition")
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// RevertSeed handles POST /api/stock/{id}/revert-seed. A zero quantity
// brings back every seeded unit.
func (h *StockHandler) RevertSeed(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "stock")
	if !ok {
		return
	}
	var req revertSeedRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	s, err := store.RevertSeed(r.Context(), h.DB, actor, id, req.Quantity, req.Notes)
	if err != nil {
		storeError(w, r, err, "revert seed")
		return
	}
	h.Metrics.StockOperation(model.MovementRevertSeed)
	slog.Info("seed reverted", "user", actor.Username, "stock_id", id, "quantity", req.Quantity)
	jsonResponse(w, http.StatusOK, s)
}

// Move handles POST /api/item-movements.
func (h *StockHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req store.MoveInput
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	dest, err := store.MoveStock(r.Context(), h.DB, actor, req)
	if err != nil {
		storeError(w, r, err, "move stock")
		return
	}
	h.Metrics.StockOperation(model.MovementTransfer)
	slog.Info("stock moved", "user", actor.Username, "item_id", dest.ItemID, "to_box", req.ToBoxID, "quantity", req.Quantity)
	jsonResponse(w, http.StatusOK, dest)
}

// Movements handles GET /api/stock-movements.
func (h *StockHandler) Movements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	moves, err := store.ListMovements(r.Context(), h.DB, store.MovementFilter{
		ItemID:        queryID(r, "item_id"),
		StockID:       queryID(r, "stock_id"),
		BoxID:         queryID(r, "box_id"),
		MovementType:  q.Get("type"),
		ReferenceType: q.Get("reference_type"),
		ReferenceID:   queryID(r, "reference_id"),
		Limit:         limit,
	})
	if err != nil {
		storeError(w, r, err, "list movements")
		return
	}
	if moves == nil {
		moves = []model.StockMovement{}
	}
	jsonResponse(w, http.StatusOK, moves)
}
