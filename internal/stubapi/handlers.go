package stubapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fuelsync/internal/logging"
	"github.com/JonMunkholm/fuelsync/internal/schema"
)

// multipartOverhead is the allowance for multipart framing on top of the file.
const multipartOverhead = 1 << 20

// handleUpload accepts a multipart "file" part holding the analysis spreadsheet.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	if fault := s.nextFault(); fault != 0 {
		logger.Info("injected failure", "status", fault)
		writeJSON(w, fault, map[string]any{"message": "injected failure"})
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, ErrTooManyUploads.Error())
		return
	}
	defer s.limiter.Release()

	maxSize := s.opts.MaxFileSize
	if r.ContentLength > maxSize+multipartOverhead {
		writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds the size limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds the size limit")
			return
		}
		writeError(w, r, http.StatusUnprocessableEntity, "no file provided in field \"file\"")
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		writeError(w, r, http.StatusRequestEntityTooLarge, "file exceeds the size limit")
		return
	}
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".xlsx" {
		writeError(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("unsupported file type %q", ext))
		return
	}

	rows, err := checkWorkbook(file)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	up := Upload{
		ID:         uuid.NewString(),
		Filename:   header.Filename,
		Size:       header.Size,
		Rows:       rows,
		Status:     "processed",
		ReceivedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.uploads[up.ID] = up
	s.order = append(s.order, up.ID)
	s.mu.Unlock()

	logger.Info("upload accepted", "upload_id", up.ID, "file", up.Filename, "rows", rows)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "import accepted",
		"id":      up.ID,
		"rows":    rows,
	})
}

func (s *Server) nextFault() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if len(s.faults) == 0 {
		return 0
	}
	fault := s.faults[0]
	s.faults = s.faults[1:]
	return fault
}

// checkWorkbook verifies the first sheet carries the wide header and returns
// the number of data rows.
func checkWorkbook(r io.Reader) (int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("file is not a valid xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		slog.Warn("reading uploaded workbook", "error", err)
		return 0, fmt.Errorf("workbook could not be read")
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("workbook is empty")
	}

	want := schema.WideHeader()
	got := rows[0]
	for i, name := range want {
		if i >= len(got) {
			return 0, fmt.Errorf("missing column %q", name)
		}
		if got[i] != name {
			return 0, fmt.Errorf("column %d is %q, expected %q", i+1, got[i], name)
		}
	}
	if len(got) > len(want) {
		return 0, fmt.Errorf("unexpected column %q", got[len(want)])
	}

	return len(rows) - 1, nil
}

// handleStatus returns the processing record of an accepted upload.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")

	s.mu.Lock()
	up, ok := s.uploads[id]
	s.mu.Unlock()

	if !ok {
		writeError(w, r, http.StatusNotFound, "upload not found")
		return
	}
	writeJSON(w, http.StatusOK, up)
}
