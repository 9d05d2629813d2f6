package tableau

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/logging"
)

// ExportResult describes a downloaded view.
type ExportResult struct {
	Path     string
	ViewName string
	Bytes    int64
	Duration time.Duration
}

// Exporter downloads the source view as CSV in a single signed-in session.
type Exporter struct {
	client     *Client
	cred       Credentials
	workbookID string
	viewID     string
	log        logging.Logger
}

// NewExporter builds an Exporter from the Tableau section. The section must
// pass RequireExport.
func NewExporter(t config.TableauConfig, log logging.Logger, opts ...Option) (*Exporter, error) {
	if err := t.RequireExport(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	log = logging.OrNop(log)
	opts = append([]Option{WithLogger(log)}, opts...)
	return &Exporter{
		client:     NewClient(t.Server, t.APIVersion, t.Timeout, opts...),
		cred:       CredentialsFromConfig(t),
		workbookID: t.WorkbookID,
		viewID:     t.ViewID,
		log:        log,
	}, nil
}

// Export signs in, checks the view belongs to the workbook, writes its CSV
// to dst and signs out. dst is replaced only after a complete download.
func (e *Exporter) Export(ctx context.Context, dst string) (*ExportResult, error) {
	start := time.Now()

	if err := e.client.SignIn(ctx, e.cred); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	defer e.signOut(ctx)

	view, err := e.findView(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	n, err := e.download(ctx, view.ID, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	res := &ExportResult{Path: dst, ViewName: view.Name, Bytes: n, Duration: time.Since(start)}
	e.log.Info("view exported",
		"view", view.Name,
		"view_id", view.ID,
		"path", dst,
		"bytes", n,
		"duration", res.Duration)
	return res, nil
}

// Views lists the views of the configured workbook.
func (e *Exporter) Views(ctx context.Context) ([]View, error) {
	if err := e.client.SignIn(ctx, e.cred); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	defer e.signOut(ctx)

	views, err := e.client.ListViews(ctx, e.workbookID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	return views, nil
}

// Workbooks lists every workbook on the site.
func (e *Exporter) Workbooks(ctx context.Context) ([]Workbook, error) {
	if err := e.client.SignIn(ctx, e.cred); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	defer e.signOut(ctx)

	wbs, err := e.client.ListWorkbooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	return wbs, nil
}

// signOut ends the session even when ctx is done, logging any failure.
func (e *Exporter) signOut(ctx context.Context) {
	if err := e.client.SignOut(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn("tableau sign out failed", "error", err)
	}
}

func (e *Exporter) findView(ctx context.Context) (View, error) {
	views, err := e.client.ListViews(ctx, e.workbookID)
	if err != nil {
		return View{}, err
	}
	for _, v := range views {
		if v.ID == e.viewID {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("view %s not found in workbook %s", e.viewID, e.workbookID)
}

func (e *Exporter) download(ctx context.Context, viewID, dst string) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return 0, err
	}

	n, err := e.client.DownloadViewCSV(ctx, viewID, tmp)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, err
	}
	return n, nil
}
