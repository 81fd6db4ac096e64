package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/erazemk/zaloga/internal/store"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// jsonMessage writes a success response without a resource body.
func jsonMessage(w http.ResponseWriter, message string) {
	jsonResponse(w, http.StatusOK, map[string]string{"message": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeValid decodes the body into target and runs its validate tags. On
// failure it writes a 400 and returns false.
func decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r, target); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		jsonError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request body"
	}
	fe := ve[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}

// pathID parses the named path value as a positive ID. On failure it writes
// a 400 naming what, and returns false.
func pathID(w http.ResponseWriter, r *http.Request, name, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

// queryID parses an optional numeric query parameter. Missing or malformed
// values read as zero.
func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}

// storeError maps a store failure onto a status code. Unclassified errors
// are logged and hidden behind a generic message.
func storeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var pe *store.ProcessError
	if errors.As(err, &pe) {
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error":  pe.Error(),
			"errors": pe.Lines,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrStateConflict),
		errors.Is(err, store.ErrInsufficientStock):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("failed to "+action, "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, status, "failed to "+action)
		return
	}
	jsonError(w, status, err.Error())
}

// attachment builds a Content-Disposition value for a file download.
func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}
