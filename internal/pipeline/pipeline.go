// Package pipeline runs the export → reshape → upload sequence as a single
// function call. Each step's failure stops the run, except that a failed
// upload leaves the spreadsheet on disk and is reported through ErrUpload.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/history"
	"github.com/JonMunkholm/fuelsync/internal/logging"
	"github.com/JonMunkholm/fuelsync/internal/reshape"
	"github.com/JonMunkholm/fuelsync/internal/tableau"
	"github.com/JonMunkholm/fuelsync/internal/upload"
)

// ErrUpload marks a run whose spreadsheet was written but not delivered.
var ErrUpload = errors.New("upload step failed")

// Exporter produces the long-format CSV at dst.
type Exporter interface {
	Export(ctx context.Context, dst string) (*tableau.ExportResult, error)
}

// Uploader delivers the spreadsheet.
type Uploader interface {
	Upload(ctx context.Context, path string) (*upload.Result, error)
}

// Deps are the collaborators of a run. A nil Exporter skips the export
// step and reshapes the CSV already on disk. A nil Uploader is built from
// the API config when uploads are enabled.
type Deps struct {
	Exporter Exporter
	Uploader Uploader
	History  history.Store
	Logger   logging.Logger
}

// Report describes a finished run.
type Report struct {
	RunID    uuid.UUID
	CSVPath  string
	XLSXPath string

	Export  *tableau.ExportResult
	Reshape *reshape.Result
	Upload  *upload.Result

	ExportSkipped bool
	UploadSkipped bool

	CSVBytes  int64
	XLSXBytes int64
	Duration  time.Duration
}

// Run executes one pipeline run against cfg.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Report, error) {
	start := time.Now()
	runID := uuid.New()
	ctx = logging.WithRun(ctx, runID.String())

	log := runLogger(ctx, deps.Logger, runID)
	store := deps.History
	if store == nil {
		store = history.NopStore{}
	}

	rep := &Report{
		RunID:    runID,
		CSVPath:  cfg.CSVPath(),
		XLSXPath: cfg.XLSXPath(),
	}
	run := &history.Run{
		ID:        runID,
		StartedAt: start.UTC(),
		Status:    history.StatusRunning,
		CSVPath:   rep.CSVPath,
		XLSXPath:  rep.XLSXPath,
	}
	if err := store.Start(ctx, run); err != nil {
		log.Warn("run history unavailable", "error", err)
	}

	finish := func(status history.Status, err error) {
		run.Status = status
		run.FinishedAt = time.Now().UTC()
		if err != nil {
			run.Error = err.Error()
		}
		if hErr := store.Finish(context.WithoutCancel(ctx), run); hErr != nil {
			log.Warn("recording run failed", "error", hErr)
		}
		rep.CSVBytes = fileSize(rep.CSVPath)
		rep.XLSXBytes = fileSize(rep.XLSXPath)
		rep.Duration = time.Since(start)
	}

	log.Info("run started", "csv", rep.CSVPath, "xlsx", rep.XLSXPath, "upload_enabled", cfg.API.Enabled)

	if err := os.MkdirAll(cfg.Files.OutputDir, 0755); err != nil {
		err = fmt.Errorf("create output directory: %w", err)
		finish(history.StatusFailed, err)
		return rep, err
	}

	// Export
	if deps.Exporter != nil {
		log.Info("step", "name", "export")
		res, err := deps.Exporter.Export(ctx, rep.CSVPath)
		if err != nil {
			log.Error("export failed", "error", err)
			finish(history.StatusFailed, err)
			return rep, err
		}
		rep.Export = res
	} else {
		rep.ExportSkipped = true
		log.Info("export skipped, reshaping existing file", "csv", rep.CSVPath)
	}

	// Reshape
	log.Info("step", "name", "reshape")
	res, err := reshape.Reshape(ctx, rep.CSVPath, rep.XLSXPath, reshape.Options{Logger: log})
	rep.Reshape = res
	if res != nil {
		run.InputRows = res.InputRows
		run.OutputRows = res.Rows
		run.DroppedRows = res.Dropped
	}
	if err != nil {
		log.Error("reshape failed", "error", err)
		finish(history.StatusFailed, err)
		return rep, err
	}

	// Upload
	if !cfg.API.Enabled {
		rep.UploadSkipped = true
		log.Info("upload disabled")
		finish(history.StatusSucceeded, nil)
		log.Info("run complete", "duration", rep.Duration)
		return rep, nil
	}

	uploader := deps.Uploader
	if uploader == nil {
		uploader = upload.New(upload.SettingsFromConfig(cfg.API), upload.WithLogger(log))
	}

	log.Info("step", "name", "upload")
	up, err := uploader.Upload(ctx, rep.XLSXPath)
	rep.Upload = up
	if up != nil {
		run.HTTPStatus = up.HTTPStatus
		run.Attempts = up.Attempts
		run.UploadID = up.UploadID
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUpload, err)
		log.Error("upload failed, spreadsheet kept", "xlsx", rep.XLSXPath, "error", err)
		finish(history.StatusUploadFailed, err)
		return rep, err
	}

	run.Uploaded = true
	finish(history.StatusSucceeded, nil)
	log.Info("run complete", "duration", rep.Duration, "upload_id", up.UploadID)
	return rep, nil
}

// runLogger tags the injected logger with the run ID when it supports fields.
func runLogger(ctx context.Context, l logging.Logger, runID uuid.UUID) logging.Logger {
	switch v := l.(type) {
	case nil:
		return logging.FromContext(ctx)
	case *slog.Logger:
		return v.With("run_id", runID.String())
	default:
		return v
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
