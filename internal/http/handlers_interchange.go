package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"

	"finanzas/internal/csvio"
	applog "finanzas/internal/log"
	"finanzas/internal/ofx"
)

const importTypeOFX = "ofx"

// handleExport streams the owner's records as CSV.
// Query: kind=complete|expenses|incomes (default complete).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := csvio.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, r, badRequest{err.Error()})
		return
	}

	// Encode into memory first so a failed load still gets a JSON error.
	var buf strings.Builder
	if err := csvio.NewExporter(s.adapter).Export(r.Context(), &buf, owner, kind); err != nil {
		s.events.LogError(r.Context(), "Export failed", err, applog.OpExport, applog.NewFields().WithOwner(owner))
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("finanzas_%s_%s.csv", kind, s.now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, buf.String())

	s.logger.InfoContext(r.Context(), "Export served",
		applog.FieldOwner, owner,
		applog.FieldKind, string(kind),
		"bytes", buf.Len())
}

// handleImport reads a CSV or OFX file from the raw body or from the "file"
// field of a multipart form.
// Query: type=auto|expenses|incomes|ofx (default auto).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	typ := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type")))
	var hint csvio.Hint
	if typ != importTypeOFX {
		if hint, err = csvio.ParseHint(typ); err != nil {
			writeError(w, r, badRequest{err.Error()})
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxImportBytes)
	body, closeBody, err := importBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer closeBody()

	im := csvio.NewImporter(s.adapter,
		csvio.WithClock(s.now),
		csvio.WithLogger(s.logger.WithComponent(applog.ComponentImport).Logger))

	var res csvio.Result
	if typ == importTypeOFX {
		txs, perr := ofx.Parse(r.Context(), body)
		if perr != nil {
			var tooLarge *http.MaxBytesError
			if !errors.As(perr, &tooLarge) {
				perr = badRequest{"archivo OFX inválido: " + perr.Error()}
			}
			writeError(w, r, perr)
			return
		}
		res, err = im.ImportTransactions(r.Context(), owner, txs)
	} else {
		res, err = im.Import(r.Context(), owner, body, hint)
	}

	// Rows stored before a failure are kept, so the cache goes either way.
	if res.Imported > 0 {
		s.mutated(owner)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.imports, 1)
	kind := typ
	if kind == "" {
		kind = string(csvio.HintAuto)
	}
	s.events.LogImport(r.Context(), owner, kind, res.Imported, res.Skipped, res.Errors)
	writeJSON(w, http.StatusOK, res)
}

// importBody returns the uploaded file of a multipart request or the raw body.
func importBody(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, badRequest{"falta el archivo en el campo \"file\""}
	}
	return file, func() {
		file.Close()
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}, nil
}
