package api

import (
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/zaloga/internal/auth"
	"github.com/erazemk/zaloga/internal/blob"
	"github.com/erazemk/zaloga/internal/metrics"
	"github.com/erazemk/zaloga/internal/store"
)

// Options configures the router.
type Options struct {
	JWTSecret      string
	BorrowPeriod   time.Duration
	UploadMaxBytes int64
	// Metrics is optional. When set, /metrics is served and requests are
	// instrumented.
	Metrics *metrics.Metrics
}

const defaultUploadMaxBytes = 10 << 20

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sqlx.DB, blobs blob.Store, opts Options) http.Handler {
	if opts.BorrowPeriod <= 0 {
		opts.BorrowPeriod = store.DefaultBorrowPeriod
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = defaultUploadMaxBytes
	}
	m := opts.Metrics

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret}
	usersHandler := &UsersHandler{DB: db}
	boxesHandler := &BoxesHandler{DB: db}
	itemsHandler := &ItemsHandler{DB: db, Blobs: blobs, MaxUpload: opts.UploadMaxBytes, Metrics: m}
	stockHandler := &StockHandler{DB: db, Metrics: m}
	borrowHandler := &BorrowHandler{DB: db, Period: opts.BorrowPeriod, Metrics: m}
	clearanceHandler := &ClearanceHandler{DB: db, Blobs: blobs, MaxUpload: opts.UploadMaxBytes, Metrics: m}

	authMW := AuthMiddleware(opts.JWTSecret, db)
	can := func(actions ...auth.Action) func(http.HandlerFunc) http.Handler {
		require := RequirePermission(actions...)
		return func(h http.HandlerFunc) http.Handler { return authMW(require(h)) }
	}
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonMessage(w, "ok")
	})
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// Auth.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))

	// Users.
	manageUsers := can(auth.ManageUsers)
	mux.Handle("GET /api/users", manageUsers(usersHandler.List))
	mux.Handle("POST /api/users", manageUsers(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", manageUsers(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", manageUsers(usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", manageUsers(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", manageUsers(usersHandler.Delete))

	// Boxes: read (all roles), write (storage-master-manager).
	manageBoxes := can(auth.ManageBoxes)
	mux.Handle("GET /api/boxes", authed(boxesHandler.List))
	mux.Handle("POST /api/boxes", manageBoxes(boxesHandler.Create))
	mux.Handle("GET /api/boxes/{id}", authed(boxesHandler.Get))
	mux.Handle("PUT /api/boxes/{id}", manageBoxes(boxesHandler.Update))
	mux.Handle("DELETE /api/boxes/{id}", manageBoxes(boxesHandler.Delete))

	// Items.
	manageItems := can(auth.ManageItems)
	approveItems := can(auth.ApproveItems)
	archiveItems := can(auth.ArchiveItems)
	mux.Handle("GET /api/items", authed(itemsHandler.List))
	mux.Handle("POST /api/items", manageItems(itemsHandler.Create))
	mux.Handle("GET /api/items/export", authed(itemsHandler.Export))
	mux.Handle("POST /api/items/import", manageItems(itemsHandler.Import))
	mux.Handle("POST /api/items/bulk-approve", approveItems(itemsHandler.BulkApprove))
	mux.Handle("POST /api/items/bulk-archive", archiveItems(itemsHandler.BulkArchive))
	mux.Handle("POST /api/items/bulk-clearance", can(auth.BulkClearance)(itemsHandler.BulkClearance))
	mux.Handle("POST /api/items/bulk-clearance/revert", can(auth.BulkClearance)(itemsHandler.BulkRevertClearance))
	mux.Handle("GET /api/items/{id}", authed(itemsHandler.Get))
	mux.Handle("PUT /api/items/{id}", manageItems(itemsHandler.Update))
	mux.Handle("DELETE /api/items/{id}", manageItems(itemsHandler.Delete))
	mux.Handle("POST /api/items/{id}/approve", approveItems(itemsHandler.Approve))
	mux.Handle("POST /api/items/{id}/reject", approveItems(itemsHandler.Reject))
	mux.Handle("GET /api/items/{id}/history", authed(itemsHandler.History))
	mux.Handle("POST /api/items/{id}/archive", archiveItems(itemsHandler.Archive))
	mux.Handle("POST /api/items/{id}/unarchive", archiveItems(itemsHandler.Unarchive))
	mux.Handle("GET /api/items/{id}/archive", archiveItems(itemsHandler.GetArchive))
	mux.Handle("POST /api/items/{id}/images", manageItems(itemsHandler.UploadImage))
	mux.Handle("GET /api/items/{id}/images/{imageID}", authed(itemsHandler.GetImage))
	mux.Handle("DELETE /api/items/{id}/images/{imageID}", manageItems(itemsHandler.DeleteImage))
	mux.Handle("POST /api/items/{id}/stock", can(auth.ManageStock)(stockHandler.Add))

	// Stock.
	manageStock := can(auth.ManageStock)
	mux.Handle("GET /api/stock", authed(stockHandler.List))
	mux.Handle("GET /api/stock/{id}", authed(stockHandler.Get))
	mux.Handle("POST /api/stock/{id}/adjust", manageStock(stockHandler.Adjust))
	mux.Handle("PUT /api/stock/{id}/condition", manageStock(stockHandler.UpdateCondition))
	mux.Handle("POST /api/stock/{id}/revert-seed", manageStock(stockHandler.RevertSeed))
	mux.Handle("POST /api/item-movements", can(auth.MoveStock)(stockHandler.Move))
	mux.Handle("GET /api/stock-movements", authed(stockHandler.Movements))

	// Borrow requests. Stage permissions are checked per request.
	processReturn := can(auth.ProcessBorrowReturn)
	mux.Handle("GET /api/borrow-requests", authed(borrowHandler.List))
	mux.Handle("POST /api/borrow-requests", authed(borrowHandler.Create))
	mux.Handle("GET /api/borrow-requests/{id}", authed(borrowHandler.Get))
	mux.Handle("POST /api/borrow-requests/{id}/approve", authed(borrowHandler.Approve))
	mux.Handle("POST /api/borrow-requests/{id}/reject", authed(borrowHandler.Reject))
	mux.Handle("POST /api/borrow-requests/{id}/cancel", authed(borrowHandler.Cancel))
	mux.Handle("POST /api/borrow-requests/{id}/complete", processReturn(borrowHandler.Complete))
	mux.Handle("POST /api/borrow-requests/{id}/seed", processReturn(borrowHandler.Seed))
	mux.Handle("POST /api/borrow-requests/{id}/extend", authed(borrowHandler.Extend))
	mux.Handle("POST /api/borrow-requests/{id}/extension", can(auth.DecideExtension)(borrowHandler.DecideExtension))

	// Clearance.
	viewClearance := can(auth.ManageClearance, auth.ApproveClearance)
	manageClearance := can(auth.ManageClearance)
	mux.Handle("GET /api/clearance-forms", viewClearance(clearanceHandler.List))
	mux.Handle("POST /api/clearance-forms", manageClearance(clearanceHandler.Create))
	mux.Handle("GET /api/clearance-forms/{id}", viewClearance(clearanceHandler.Get))
	mux.Handle("PUT /api/clearance-forms/{id}", viewClearance(clearanceHandler.Action))
	mux.Handle("DELETE /api/clearance-forms/{id}", manageClearance(clearanceHandler.Delete))
	mux.Handle("POST /api/clearance-forms/{id}/scan", manageClearance(clearanceHandler.UploadScan))
	mux.Handle("GET /api/clearance-forms/{id}/scan", viewClearance(clearanceHandler.GetScan))
	mux.Handle("GET /api/clearance-forms/{id}/pdf", viewClearance(clearanceHandler.PDF))
	mux.Handle("GET /api/clearance-forms/{id}/generate-pdf", viewClearance(clearanceHandler.PDF))
	mux.Handle("POST /api/clearance-forms/upload", manageClearance(clearanceHandler.UploadScan))
	mux.Handle("GET /api/cleared-items", viewClearance(clearanceHandler.ClearedItems))

	return m.Middleware(mux)
}
