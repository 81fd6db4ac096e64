package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// schema is the full database schema, written for SQLite. Postgres gets the
// same statements through pgDialect.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('superadmin', 'admin', 'item-master', 'storage-master-manager', 'storage-master', 'manager', 'user')),
    department    TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS boxes (
    id          INTEGER PRIMARY KEY,
    code        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    location    TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at  DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_boxes_code_active
    ON boxes(code) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id               INTEGER PRIMARY KEY,
    product_code     TEXT NOT NULL UNIQUE,
    brand_code       TEXT NOT NULL,
    product_division TEXT NOT NULL,
    product_category TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    period           TEXT NOT NULL DEFAULT '',
    season           TEXT NOT NULL DEFAULT '',
    unit             TEXT NOT NULL DEFAULT '',
    condition        TEXT NOT NULL DEFAULT '',
    condition_notes  TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'pending_approval' CHECK (status IN ('pending_approval', 'approved', 'rejected', 'archived')),
    rejection_reason TEXT NOT NULL DEFAULT '',
    created_by       INTEGER REFERENCES users(id),
    approved_by      INTEGER REFERENCES users(id),
    approved_at      DATETIME,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_images (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    blob_key     TEXT NOT NULL,
    content_type TEXT NOT NULL,
    position     INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_events (
    id         INTEGER PRIMARY KEY,
    item_id    INTEGER NOT NULL REFERENCES items(id),
    action     TEXT NOT NULL,
    actor_id   INTEGER REFERENCES users(id),
    reason     TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_stock (
    id              INTEGER PRIMARY KEY,
    item_id         INTEGER NOT NULL REFERENCES items(id),
    box_id          INTEGER NOT NULL REFERENCES boxes(id),
    pending         INTEGER NOT NULL DEFAULT 0 CHECK (pending >= 0),
    in_storage      INTEGER NOT NULL DEFAULT 0 CHECK (in_storage >= 0),
    on_borrow       INTEGER NOT NULL DEFAULT 0 CHECK (on_borrow >= 0),
    in_clearance    INTEGER NOT NULL DEFAULT 0 CHECK (in_clearance >= 0),
    seeded          INTEGER NOT NULL DEFAULT 0 CHECK (seeded >= 0),
    condition       TEXT NOT NULL DEFAULT '',
    condition_notes TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (item_id, box_id)
);

CREATE TABLE IF NOT EXISTS stock_movements (
    id             INTEGER PRIMARY KEY,
    item_id        INTEGER NOT NULL REFERENCES items(id),
    stock_id       INTEGER REFERENCES item_stock(id) ON DELETE SET NULL,
    box_id         INTEGER NOT NULL REFERENCES boxes(id),
    movement_type  TEXT NOT NULL,
    quantity       INTEGER NOT NULL CHECK (quantity > 0),
    from_state     TEXT NOT NULL,
    to_state       TEXT NOT NULL,
    reference_type TEXT NOT NULL DEFAULT '',
    reference_id   INTEGER,
    performed_by   INTEGER REFERENCES users(id),
    notes          TEXT NOT NULL DEFAULT '',
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS borrow_requests (
    id                  INTEGER PRIMARY KEY,
    user_id             INTEGER NOT NULL REFERENCES users(id),
    purpose             TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL CHECK (status IN ('pending_manager', 'pending_storage', 'active', 'pending_extension', 'complete', 'seeded', 'rejected', 'cancelled')),
    start_date          DATETIME,
    end_date            DATETIME,
    due_date            DATETIME,
    requested_end_date  DATETIME,
    manager_approved_by INTEGER REFERENCES users(id),
    manager_approved_at DATETIME,
    storage_approved_by INTEGER REFERENCES users(id),
    storage_approved_at DATETIME,
    rejected_by         INTEGER REFERENCES users(id),
    rejection_reason    TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS borrow_request_items (
    id               INTEGER PRIMARY KEY,
    request_id       INTEGER NOT NULL REFERENCES borrow_requests(id) ON DELETE CASCADE,
    item_id          INTEGER NOT NULL REFERENCES items(id),
    quantity         INTEGER NOT NULL CHECK (quantity > 0),
    status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'borrowed', 'complete', 'seeded')),
    return_condition TEXT NOT NULL DEFAULT '',
    seed_reason      TEXT NOT NULL DEFAULT '',
    processed_by     INTEGER REFERENCES users(id),
    processed_at     DATETIME
);

CREATE TABLE IF NOT EXISTS borrow_allocations (
    id       INTEGER PRIMARY KEY,
    line_id  INTEGER NOT NULL REFERENCES borrow_request_items(id) ON DELETE CASCADE,
    stock_id INTEGER REFERENCES item_stock(id) ON DELETE SET NULL,
    box_id   INTEGER NOT NULL REFERENCES boxes(id),
    quantity INTEGER NOT NULL CHECK (quantity > 0)
);

CREATE TABLE IF NOT EXISTS clearance_forms (
    id                  INTEGER PRIMARY KEY,
    form_number         TEXT NOT NULL UNIQUE,
    notes               TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'pending_approval', 'approved', 'processed', 'rejected')),
    created_by          INTEGER REFERENCES users(id),
    approved_by         INTEGER REFERENCES users(id),
    approved_at         DATETIME,
    rejected_by         INTEGER REFERENCES users(id),
    rejection_reason    TEXT NOT NULL DEFAULT '',
    pdf_generated       BOOLEAN NOT NULL DEFAULT FALSE,
    pdf_generated_at    DATETIME,
    scanned_file_key    TEXT NOT NULL DEFAULT '',
    scanned_uploaded_at DATETIME,
    processed_by        INTEGER REFERENCES users(id),
    processed_at        DATETIME,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS clearance_form_items (
    id       INTEGER PRIMARY KEY,
    form_id  INTEGER NOT NULL REFERENCES clearance_forms(id) ON DELETE CASCADE,
    stock_id INTEGER REFERENCES item_stock(id) ON DELETE SET NULL,
    item_id  INTEGER NOT NULL REFERENCES items(id),
    box_id   INTEGER NOT NULL REFERENCES boxes(id),
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    reason   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cleared_items (
    id           INTEGER PRIMARY KEY,
    form_id      INTEGER NOT NULL REFERENCES clearance_forms(id),
    form_number  TEXT NOT NULL,
    item_id      INTEGER NOT NULL,
    product_code TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    box_code     TEXT NOT NULL DEFAULT '',
    quantity     INTEGER NOT NULL CHECK (quantity > 0),
    condition    TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL DEFAULT '',
    cleared_by   INTEGER REFERENCES users(id),
    cleared_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_clearances (
    id           INTEGER PRIMARY KEY,
    item_id      INTEGER NOT NULL REFERENCES items(id),
    stock_id     INTEGER REFERENCES item_stock(id) ON DELETE SET NULL,
    quantity     INTEGER NOT NULL CHECK (quantity > 0),
    from_pending INTEGER NOT NULL DEFAULT 0,
    from_storage INTEGER NOT NULL DEFAULT 0,
    reason       TEXT NOT NULL DEFAULT '',
    created_by   INTEGER REFERENCES users(id),
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_archives (
    id              INTEGER PRIMARY KEY,
    item_id         INTEGER NOT NULL REFERENCES items(id),
    reason          TEXT NOT NULL,
    previous_status TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    condition       TEXT NOT NULL DEFAULT '',
    condition_notes TEXT NOT NULL DEFAULT '',
    archived_by     INTEGER REFERENCES users(id),
    archived_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS item_archive_images (
    id           INTEGER PRIMARY KEY,
    archive_id   INTEGER NOT NULL REFERENCES item_archives(id) ON DELETE CASCADE,
    original_key TEXT NOT NULL,
    archived_key TEXT NOT NULL,
    content_type TEXT NOT NULL,
    position     INTEGER NOT NULL DEFAULT 0
)
`

var pgDialect = strings.NewReplacer(
	"INTEGER PRIMARY KEY", "BIGSERIAL PRIMARY KEY",
	"INTEGER", "BIGINT",
	"DATETIME", "TIMESTAMPTZ",
)

// statements splits the schema into single statements for driver.
func statements(driver, ddl string) []string {
	if driver == DriverPgx {
		ddl = pgDialect.Replace(ddl)
	}
	var stmts []string
	for _, s := range strings.Split(ddl, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sqlx.DB) error {
	for _, stmt := range statements(db.DriverName(), schema) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
