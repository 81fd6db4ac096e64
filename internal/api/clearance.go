package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/report"
	"github.com/erazemk/zaloga/internal/store"
)

// ClearanceHandler handles clearance forms and their scans.
type ClearanceHandler struct {
	DB        *sqlx.DB
	Blobs     blob.Store
	MaxUpload int64
	Metrics   *metrics.Metrics
}

// Form actions accepted by PUT /api/clearance-forms/{id}.
const (
	actionSubmit           = "submit"
	actionApprove          = "approve"
	actionReject           = "reject"
	actionProcess          = "process"
	actionMarkPDFGenerated = "mark_pdf_generated"
)

type clearanceActionRequest struct {
	Action string `json:"action" validate:"required,oneof=submit approve reject process mark_pdf_generated"`
	Reason string `json:"reason"`
}

// scanTypes maps accepted scan MIME types to file extensions.
var scanTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// List handles GET /api/clearance-forms?status=.
func (h *ClearanceHandler) List(w http.ResponseWriter, r *http.Request) {
	forms, err := store.ListClearanceForms(r.Context(), h.DB, r.URL.Query().Get("status"))
	if err != nil {
		storeError(w, r, err, "list clearance forms")
		return
	}
	if forms == nil {
		forms = []model.ClearanceForm{}
	}
	jsonResponse(w, http.StatusOK, forms)
}

// Create handles POST /api/clearance-forms.
func (h *ClearanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in store.ClearanceInput
	if !decodeValid(w, r, &in) {
		return
	}
	actor := actorFrom(r)
	form, err := store.CreateClearanceForm(r.Context(), h.DB, actor, in)
	if err != nil {
		storeError(w, r, err, "create clearance form")
		return
	}
	h.Metrics.Transition("clearance_form", form.Status)
	slog.Info("clearance form created", "user", actor.Username, "form", form.FormNumber, "lines", len(form.Items))
	jsonResponse(w, http.StatusCreated, form)
}

// Get handles GET /api/clearance-forms/{id}.
func (h *ClearanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "clearance form")
	if !ok {
		return
	}
	form, err := store.GetClearanceForm(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get clearance form")
		return
	}
	jsonResponse(w, http.StatusOK, form)
}

// Action handles PUT /api/clearance-forms/{id}. Approve and reject are
// checked against the approver roles; every other action needs storage
// staff.
func (h *ClearanceHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "clearance form")
	if !ok {
		return
	}
	var req clearanceActionRequest
	if !decodeValid(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if req.Action != actionApprove && req.Action != actionReject && !auth.Can(actor.Role, auth.ManageClearance) {
		jsonError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	var form *model.ClearanceForm
	var err error
	lines := 0
	switch req.Action {
	case actionSubmit:
		form, err = store.SubmitClearanceForm(r.Context(), h.DB, actor, id)
	case actionApprove:
		form, err = store.ApproveClearanceForm(r.Context(), h.DB, actor, id)
	case actionReject:
		form, err = store.RejectClearanceForm(r.Context(), h.DB, actor, id, req.Reason)
	case actionProcess:
		// Purged items take their lines with them, so count beforehand.
		if form, err = store.GetClearanceForm(r.Context(), h.DB, id); err == nil {
			lines = len(form.Items)
			form, err = store.ProcessClearanceForm(r.Context(), h.DB, h.Blobs, actor, id)
		}
	case actionMarkPDFGenerated:
		form, err = store.MarkClearancePDFGenerated(r.Context(), h.DB, actor, id)
	}
	if err != nil {
		storeError(w, r, err, req.Action+" clearance form")
		return
	}

	for range lines {
		h.Metrics.StockOperation(model.MovementClearance)
	}
	h.Metrics.Transition("clearance_form", form.Status)
	slog.Info("clearance form updated", "user", actor.Username, "form", form.FormNumber,
		"action", req.Action, "status", form.Status)
	jsonResponse(w, http.StatusOK, form)
}

// Delete handles DELETE /api/clearance-forms/{id}. Only drafts can be
// deleted; their stock goes back to storage.
func (h *ClearanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "clearance form")
	if !ok {
		return
	}
	actor := actorFrom(r)
	if err := store.DeleteClearanceForm(r.Context(), h.DB, actor, id); err != nil {
		storeError(w, r, err, "delete clearance form")
		return
	}
	slog.Info("clearance form deleted", "user", actor.Username, "form_id", id)
	jsonMessage(w, "clearance form deleted")
}

// UploadScan handles POST /api/clearance-forms/{id}/scan and
// POST /api/clearance-forms/upload, where the form is named by the
// form_id field.
func (h *ClearanceHandler) UploadScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	if err := r.ParseMultipartForm(h.MaxUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}
	if r.PathValue("id") == "" {
		r.SetPathValue("id", r.FormValue("form_id"))
	}
	id, ok := pathID(w, r, "id", "clearance form")
	if !ok {
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	contentType := http.DetectContentType(data)
	ext, ok := scanTypes[contentType]
	if !ok {
		jsonError(w, http.StatusBadRequest, "scan must be PDF, JPEG, or PNG")
		return
	}

	form, err := store.AttachClearanceScan(r.Context(), h.DB, h.Blobs, id, data, contentType, ext)
	if err != nil {
		storeError(w, r, err, "attach scan")
		return
	}
	slog.Info("clearance scan uploaded", "user", actorFrom(r).Username, "form", form.FormNumber, "bytes", len(data))
	jsonResponse(w, http.StatusOK, form)
}

// GetScan handles GET /api/clearance-forms/{id}/scan.
func (h *ClearanceHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "clearance form")
	if !ok {
		return
	}
	form, err := store.GetClearanceForm(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get clearance form")
		return
	}
	rc, contentType, err := store.OpenClearanceScan(r.Context(), h.DB, h.Blobs, id)
	if err != nil {
		storeError(w, r, err, "get scan")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(form.FormNumber+"-scan"+scanTypes[contentType]))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("failed to stream scan", "form_id", id, "error", err)
	}
}

// PDF handles GET /api/clearance-forms/{id}/pdf (also served as
// /generate-pdf). Rendering an approved
// form marks it as printed.
func (h *ClearanceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "clearance form")
	if !ok {
		return
	}
	form, err := store.GetClearanceForm(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get clearance form")
		return
	}
	if form.Status != model.ClearanceApproved && form.Status != model.ClearanceProcessed {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("clearance form is %s, not approved", form.Status))
		return
	}

	var buf bytes.Buffer
	if err := report.ClearanceForm(&buf, form); err != nil {
		slog.Error("failed to render clearance form", "form", form.FormNumber, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to render clearance form")
		return
	}
	if !form.PDFGenerated {
		if _, err := store.MarkClearancePDFGenerated(r.Context(), h.DB, actorFrom(r), id); err != nil {
			storeError(w, r, err, "mark clearance form printed")
			return
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(form.FormNumber+".pdf"))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write clearance pdf", "form", form.FormNumber, "error", err)
	}
}

// ClearedItems handles GET /api/cleared-items?form_id=.
func (h *ClearanceHandler) ClearedItems(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListClearedItems(r.Context(), h.DB, queryID(r, "form_id"))
	if err != nil {
		storeError(w, r, err, "list cleared items")
		return
	}
	if items == nil {
		items = []model.ClearedItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}
