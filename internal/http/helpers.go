package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"finanzas/internal/core"
	"finanzas/internal/csvio"
	applog "finanzas/internal/log"
)

// HeaderOwner selects whose ledger a request works on.
const HeaderOwner = "X-Owner"

const (
	maxOwnerLength = 64
	maxJSONBytes   = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// badRequest marks malformed input that has no domain sentinel.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	var br badRequest
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.As(err, &br):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrDuplicateCategory):
		return http.StatusConflict, "duplicate_category"
	case errors.Is(err, core.ErrCategoryInUse):
		return http.StatusConflict, "category_in_use"
	case errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrFutureDate),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrInvalidDescription),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidInstallments),
		errors.Is(err, core.ErrInvalidWarning),
		errors.Is(err, csvio.ErrNoDataRows),
		errors.Is(err, csvio.ErrUnknownRowType):
		return http.StatusBadRequest, "invalid"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeError logs server side failures and writes the JSON error body.
// Internal errors never leak their text to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		msg = "Error interno. Intenta de nuevo más tarde."
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest{"cuerpo de la solicitud vacío"}
		}
		// Field level parse errors (amounts, dates) keep their sentinel.
		for _, sentinel := range []error{core.ErrInvalidAmount, core.ErrInvalidDate, core.ErrInvalidMonth} {
			if errors.Is(err, sentinel) {
				return err
			}
		}
		return badRequest{fmt.Sprintf("JSON inválido: %v", err)}
	}
	if dec.More() {
		return badRequest{"JSON inválido: se esperaba un único objeto"}
	}
	return nil
}

// owner resolves the X-Owner header, falling back to the default owner.
func (s *Server) owner(r *http.Request) (string, error) {
	o := sanitizeInput(r.Header.Get(HeaderOwner))
	if o == "" {
		o = s.defaultOwner
	}
	if o == "" {
		return "", badRequest{"falta el encabezado " + HeaderOwner}
	}
	if utf8.RuneCountInString(o) > maxOwnerLength {
		return "", badRequest{fmt.Sprintf("%s demasiado largo (máximo %d caracteres)", HeaderOwner, maxOwnerLength)}
	}
	if strings.ContainsAny(o, "|\t\r\n") {
		return "", badRequest{HeaderOwner + " contiene caracteres inválidos"}
	}
	return o, nil
}

func monthParam(r *http.Request) (core.MonthKey, error) {
	return core.ParseMonthKey(r.PathValue("month"))
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
