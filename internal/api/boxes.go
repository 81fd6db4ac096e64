package api

import (
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

// BoxesHandler handles box-location endpoints.
type BoxesHandler struct {
	DB *sqlx.DB
}

type createBoxRequest struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

type updateBoxRequest struct {
	Description string `json:"description"`
	Location    string `json:"location"`
}

// List handles GET /api/boxes.
func (h *BoxesHandler) List(w http.ResponseWriter, r *http.Request) {
	boxes, err := store.ListBoxes(r.Context(), h.DB, r.URL.Query().Get("location"))
	if err != nil {
		storeError(w, r, err, "list boxes")
		return
	}
	if boxes == nil {
		boxes = []model.Box{}
	}
	jsonResponse(w, http.StatusOK, boxes)
}

// Create handles POST /api/boxes.
func (h *BoxesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBoxRequest
	if !decodeValid(w, r, &req) {
		return
	}
	box, err := store.CreateBox(r.Context(), h.DB, req.Code, req.Description, req.Location)
	if err != nil {
		storeError(w, r, err, "create box")
		return
	}
	slog.Info("box created", "user", actorFrom(r).Username, "box", box.Code)
	jsonResponse(w, http.StatusCreated, box)
}

// Get handles GET /api/boxes/{id}. The response includes the box contents.
func (h *BoxesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "box")
	if !ok {
		return
	}
	box, err := store.GetBox(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get box")
		return
	}
	stock, err := store.GetBoxStock(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get box stock")
		return
	}
	if stock == nil {
		stock = []model.ItemStock{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"box":   box,
		"stock": stock,
	})
}

// Update handles PUT /api/boxes/{id}.
func (h *BoxesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "box")
	if !ok {
		return
	}
	var req updateBoxRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if err := store.UpdateBox(r.Context(), h.DB, id, req.Description, req.Location); err != nil {
		storeError(w, r, err, "update box")
		return
	}
	box, err := store.GetBox(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get box")
		return
	}
	jsonResponse(w, http.StatusOK, box)
}

// Delete handles DELETE /api/boxes/{id}.
func (h *BoxesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "box")
	if !ok {
		return
	}
	if err := store.DeleteBox(r.Context(), h.DB, id); err != nil {
		storeError(w, r, err, "delete box")
		return
	}
	slog.Info("box deleted", "user", actorFrom(r).Username, "box_id", id)
	jsonMessage(w, "box deleted")
}
