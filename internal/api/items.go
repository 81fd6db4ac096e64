package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/imaging"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/sheet"
	"github.com/erazemk/zaloga/internal/store"
)

// ItemsHandler handles catalog endpoints.
type ItemsHandler struct {
	DB        *sqlx.DB
	Blobs     blob.Store
	MaxUpload int64
	Metrics   *metrics.Metrics
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type bulkIDsRequest struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1"`
	Reason  string  `json:"reason"`
}

type bulkClearanceRequest struct {
	Items []store.BulkClearanceInput `json:"items" validate:"required,min=1,dive"`
}

type bulkRevertRequest struct {
	Items []store.BulkRevertInput `json:"items" validate:"required,min=1,dive"`
}

type bulkResponse struct {
	Results   []store.BulkResult `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

func newBulkResponse(results []store.BulkResult) bulkResponse {
	resp := bulkResponse{Results: results}
	for _, res := range results {
		if res.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return resp
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := store.ListItems(r.Context(), h.DB, store.ItemFilter{
		Status:   q.Get("status"),
		Brand:    q.Get("brand"),
		Division: q.Get("division"),
		Category: q.Get("category"),
		Search:   q.Get("q"),
	})
	if err != nil {
		storeError(w, r, err, "list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req store.ItemInput
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	item, err := store.CreateItem(r.Context(), h.DB, actor, req)
	if err != nil {
		storeError(w, r, err, "create item")
		return
	}
	slog.Info("item created", "user", actor.Username, "item", item.ProductCode)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	detail, err := store.GetItemDetail(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get item")
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	var req store.ItemInput
	if !decodeValid(w, r, &req) {
		return
	}
	item, err := store.UpdateItem(r.Context(), h.DB, id, req)
	if err != nil {
		storeError(w, r, err, "update item")
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	if err := store.DeleteItem(r.Context(), h.DB, h.Blobs, id); err != nil {
		storeError(w, r, err, "delete item")
		return
	}
	slog.Info("item deleted", "user", actorFrom(r).Username, "item_id", id)
	jsonMessage(w, "item deleted")
}

// Approve handles POST /api/items/{id}/approve.
func (h *ItemsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	actor := actorFrom(r)
	item, err := store.ApproveItem(r.Context(), h.DB, actor, id)
	if err != nil {
		storeError(w, r, err, "approve item")
		return
	}
	h.Metrics.Transition("item", item.Status)
	slog.Info("item approved", "user", actor.Username, "item", item.ProductCode)
	jsonResponse(w, http.StatusOK, item)
}

// Reject handles POST /api/items/{id}/reject.
func (h *ItemsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	item, err := store.RejectItem(r.Context(), h.DB, actor, id, req.Reason)
	if err != nil {
		storeError(w, r, err, "reject item")
		return
	}
	h.Metrics.Transition("item", item.Status)
	slog.Info("item rejected", "user", actor.Username, "item", item.ProductCode, "reason", req.Reason)
	jsonResponse(w, http.StatusOK, item)
}

// BulkApprove handles POST /api/items/bulk-approve.
func (h *ItemsHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkIDsRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	resp := newBulkResponse(store.BulkApproveItems(r.Context(), h.DB, actor, req.ItemIDs))
	slog.Info("items bulk approved", "user", actor.Username, "succeeded", resp.Succeeded, "failed", resp.Failed)
	jsonResponse(w, http.StatusOK, resp)
}

// History handles GET /api/items/{id}/history.
func (h *ItemsHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	events, err := store.ListItemEvents(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get item history")
		return
	}
	if events == nil {
		events = []model.ItemEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// Archive handles POST /api/items/{id}/archive.
func (h *ItemsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	item, err := store.ArchiveItem(r.Context(), h.DB, h.Blobs, actor, id, req.Reason)
	if err != nil {
		storeError(w, r, err, "archive item")
		return
	}
	h.Metrics.Transition("item", item.Status)
	slog.Info("item archived", "user", actor.Username, "item", item.ProductCode, "reason", req.Reason)
	jsonResponse(w, http.StatusOK, item)
}

// Unarchive handles POST /api/items/{id}/unarchive.
func (h *ItemsHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	item, err := store.UnarchiveItem(r.Context(), h.DB, h.Blobs, actor, id, req.Reason)
	if err != nil {
		storeError(w, r, err, "unarchive item")
		return
	}
	h.Metrics.Transition("item", item.Status)
	slog.Info("item unarchived", "user", actor.Username, "item", item.ProductCode, "status", item.Status)
	jsonResponse(w, http.StatusOK, item)
}

// GetArchive handles GET /api/items/{id}/archive.
func (h *ItemsHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	a, err := store.GetItemArchive(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get archive")
		return
	}
	jsonResponse(w, http.StatusOK, a)
}

// BulkArchive handles POST /api/items/bulk-archive.
func (h *ItemsHandler) BulkArchive(w http.ResponseWriter, r *http.Request) {
	var req bulkIDsRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	resp := newBulkResponse(store.BulkArchiveItems(r.Context(), h.DB, h.Blobs, actor, req.ItemIDs, req.Reason))
	slog.Info("items bulk archived", "user", actor.Username, "succeeded", resp.Succeeded, "failed", resp.Failed)
	jsonResponse(w, http.StatusOK, resp)
}

// BulkClearance handles POST /api/items/bulk-clearance.
func (h *ItemsHandler) BulkClearance(w http.ResponseWriter, r *http.Request) {
	var req bulkClearanceRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	resp := newBulkResponse(store.BulkClearance(r.Context(), h.DB, actor, req.Items))
	for range resp.Succeeded {
		h.Metrics.StockOperation(model.MovementClearance)
	}
	slog.Info("items bulk cleared", "user", actor.Username, "succeeded", resp.Succeeded, "failed", resp.Failed)
	jsonResponse(w, http.StatusOK, resp)
}

// BulkRevertClearance handles POST /api/items/bulk-clearance/revert.
func (h *ItemsHandler) BulkRevertClearance(w http.ResponseWriter, r *http.Request) {
	var req bulkRevertRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	resp := newBulkResponse(store.BulkRevertClearance(r.Context(), h.DB, actor, req.Items))
	slog.Info("item clearances reverted", "user", actor.Username, "succeeded", resp.Succeeded, "failed", resp.Failed)
	jsonResponse(w, http.StatusOK, resp)
}

// UploadImage handles POST /api/items/{id}/images. Images are downscaled
// and re-encoded as JPEG before storage.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	if err := r.ParseMultipartForm(h.MaxUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	processed, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := store.AddItemImage(r.Context(), h.DB, h.Blobs, id, processed.Data, processed.MIME)
	if err != nil {
		storeError(w, r, err, "save image")
		return
	}
	slog.Info("item image uploaded", "user", actorFrom(r).Username, "item_id", id, "image_id", img.ID,
		"width", processed.Width, "height", processed.Height)
	jsonResponse(w, http.StatusCreated, img)
}

// GetImage handles GET /api/items/{id}/images/{imageID}.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	imageID, ok := pathID(w, r, "imageID", "image")
	if !ok {
		return
	}
	rc, contentType, err := store.OpenItemImage(r.Context(), h.DB, h.Blobs, id, imageID)
	if err != nil {
		storeError(w, r, err, "get image")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("failed to stream image", "image_id", imageID, "error", err)
	}
}

// DeleteImage handles DELETE /api/items/{id}/images/{imageID}.
func (h *ItemsHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "item")
	if !ok {
		return
	}
	imageID, ok := pathID(w, r, "imageID", "image")
	if !ok {
		return
	}
	if err := store.DeleteItemImage(r.Context(), h.DB, h.Blobs, id, imageID); err != nil {
		storeError(w, r, err, "delete image")
		return
	}
	jsonMessage(w, "image deleted")
}

// Import handles POST /api/items/import. Each row is committed on its own
// and failures are reported by sheet row number.
func (h *ItemsHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	if err := r.ParseMultipartForm(h.MaxUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	format, err := sheet.FormatOf(header.Filename)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := sheet.Read(file, format)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows := make([]store.ImportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, store.ImportRow{
			Line:        rec.Line,
			ProductCode: rec.Get("product_code"),
			Description: rec.Get("description"),
			Period:      rec.Get("period"),
			Season:      rec.Get("season"),
			Unit:        rec.Get("unit"),
			Condition:   rec.Get("condition"),
			BoxCode:     rec.Get("box_code"),
			Quantity:    rec.Get("quantity"),
		})
	}

	actor := actorFrom(r)
	result := store.ImportItems(r.Context(), h.DB, actor, rows)
	slog.Info("items imported", "user", actor.Username, "file", header.Filename,
		"success", result.Success, "failed", result.Failed)
	jsonResponse(w, http.StatusOK, result)
}

// Export handles GET /api/items/export?format=csv|xlsx.
func (h *ItemsHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = sheet.CSV
	}
	if format != sheet.CSV && format != sheet.XLSX {
		jsonError(w, http.StatusBadRequest, sheet.ErrUnsupported.Error())
		return
	}

	rows, err := store.ExportRows(r.Context(), h.DB, store.ItemFilter{
		Status: q.Get("status"),
		Brand:  q.Get("brand"),
	})
	if err != nil {
		storeError(w, r, err, "export items")
		return
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}

	name := fmt.Sprintf("items-%s.%s", time.Now().Format("20060102"), format)
	w.Header().Set("Content-Type", sheet.ContentType(format))
	w.Header().Set("Content-Disposition", attachment(name))
	if err := sheet.Write(w, format, store.ExportHeader, records); err != nil {
		slog.Error("failed to write export", "format", format, "error", err)
	}
}
