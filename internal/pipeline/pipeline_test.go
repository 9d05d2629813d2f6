package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/history"
	"github.com/JonMunkholm/fuelsync/internal/logging"
	"github.com/JonMunkholm/fuelsync/internal/reshape"
	"github.com/JonMunkholm/fuelsync/internal/stubapi"
	"github.com/JonMunkholm/fuelsync/internal/tableau"
	"github.com/JonMunkholm/fuelsync/internal/upload"
)

const (
	stubToken = "pipeline-secret"
	exportCSV = "Cidades,Combustíveis,Measure Names,Origens,Medição,Turno + Data,Measure Values\n" +
		"Recife,Diesel,Estoque,A,T1,D1,10\n" +
		"Recife,Diesel,Vendas,A,T1,D1,4\n" +
		"Natal,Gasolina,Estoque,B,T2,D1,\"1,250.5\"\n"
)

// fakeExporter writes a fixed CSV, or fails.
type fakeExporter struct {
	body  string
	err   error
	calls int
}

func (f *fakeExporter) Export(_ context.Context, dst string) (*tableau.ExportResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(dst, []byte(f.body), 0644); err != nil {
		return nil, err
	}
	return &tableau.ExportResult{Path: dst, ViewName: "BASE DE DADOS", Bytes: int64(len(f.body))}, nil
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Files: config.FilesConfig{
			OutputDir:     filepath.Join(t.TempDir(), "output"),
			OriginalName:  "BASE_DE_DADOS.csv",
			ProcessedName: "ANALISE_DE_PEDIDOS.xlsx",
		},
		API: config.APIConfig{
			Enabled:      apiURL != "",
			URL:          apiURL,
			Token:        stubToken,
			UploadRoute:  "/importacao-excel/upload",
			StatusRoute:  "/importacao-excel/status",
			MaxFileSize:  1 << 20,
			Timeout:      5 * time.Second,
			ProbeTimeout: time.Second,
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

func newStub(t *testing.T) (*stubapi.Server, string) {
	t.Helper()
	s := stubapi.NewServer(stubapi.Options{Token: stubToken, MaxConcurrent: 2})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func TestRun_ExportReshapeUpload(t *testing.T) {
	stub, url := newStub(t)
	cfg := testConfig(t, url)
	store := history.NewMemStore()
	exp := &fakeExporter{body: exportCSV}

	rep, err := Run(context.Background(), cfg, Deps{Exporter: exp, History: store, Logger: logging.Nop()})
	require.NoError(t, err)

	assert.Equal(t, 1, exp.calls)
	assert.False(t, rep.ExportSkipped)
	assert.False(t, rep.UploadSkipped)
	require.NotNil(t, rep.Reshape)
	assert.Equal(t, 3, rep.Reshape.InputRows)
	assert.Equal(t, 2, rep.Reshape.Rows)
	require.NotNil(t, rep.Upload)
	assert.True(t, rep.Upload.Success)
	assert.Equal(t, http.StatusCreated, rep.Upload.HTTPStatus)
	assert.NotEmpty(t, rep.Upload.UploadID)
	assert.Positive(t, rep.CSVBytes)
	assert.Positive(t, rep.XLSXBytes)

	uploads := stub.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, 2, uploads[0].Rows)

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, history.StatusSucceeded, runs[0].Status)
	assert.True(t, runs[0].Uploaded)
	assert.Equal(t, 2, runs[0].OutputRows)
	assert.Equal(t, rep.Upload.UploadID, runs[0].UploadID)
}

func TestRun_UploadDisabled(t *testing.T) {
	cfg := testConfig(t, "")

	rep, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{body: exportCSV}})
	require.NoError(t, err)

	assert.True(t, rep.UploadSkipped)
	assert.Nil(t, rep.Upload)
	assert.FileExists(t, cfg.XLSXPath())
}

func TestRun_ReshapesExistingCSVWithoutExporter(t *testing.T) {
	cfg := testConfig(t, "")
	require.NoError(t, os.MkdirAll(cfg.Files.OutputDir, 0755))
	require.NoError(t, os.WriteFile(cfg.CSVPath(), []byte(exportCSV), 0644))

	rep, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.True(t, rep.ExportSkipped)
	assert.Nil(t, rep.Export)
	assert.Equal(t, 2, rep.Reshape.Rows)
}

func TestRun_UploadFailureKeepsSpreadsheet(t *testing.T) {
	stub, url := newStub(t)
	stub.FailNext(http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	cfg := testConfig(t, url)
	store := history.NewMemStore()

	rep, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{body: exportCSV}, History: store})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, upload.ErrServer)
	assert.Equal(t, 3, stub.Attempts())
	assert.FileExists(t, cfg.XLSXPath())
	require.NotNil(t, rep.Upload)
	assert.False(t, rep.Upload.Success)
	assert.Equal(t, 3, rep.Upload.Attempts)
	assert.Equal(t, "SRV001", MapError(err).Code)

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusUploadFailed, runs[0].Status)
	assert.False(t, runs[0].Uploaded)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRun_InjectedUploader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"message":"ok","id":"abc"}`)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, "http://unused.invalid")
	up := upload.New(upload.Settings{Endpoint: srv.URL, Token: "other"})

	rep, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{body: exportCSV}, Uploader: up})
	require.NoError(t, err)
	assert.Equal(t, "Bearer other", got)
	assert.Equal(t, "abc", rep.Upload.UploadID)
}

func TestRun_SchemaErrorSkipsUpload(t *testing.T) {
	stub, url := newStub(t)
	cfg := testConfig(t, url)
	store := history.NewMemStore()
	bad := "Cidades,Combustíveis,Measure Names\nRecife,Diesel,Estoque\n"

	rep, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{body: bad}, History: store})
	require.Error(t, err)

	assert.True(t, reshape.IsSchemaError(err))
	assert.NotErrorIs(t, err, ErrUpload)
	assert.Zero(t, stub.Attempts())
	assert.Nil(t, rep.Upload)
	assert.NoFileExists(t, cfg.XLSXPath())
	assert.Equal(t, "SCH001", MapError(err).Code)

	runs, _ := store.Recent(context.Background(), 10)
	require.Len(t, runs, 1)
	assert.Equal(t, history.StatusFailed, runs[0].Status)
	assert.True(t, strings.Contains(runs[0].Error, "Measure Values"))
}

func TestRun_ExportFailureStopsRun(t *testing.T) {
	cfg := testConfig(t, "")
	exportErr := errors.New("tableau export failed: sign in: boom")

	rep, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{err: exportErr}})
	require.ErrorIs(t, err, exportErr)
	assert.Nil(t, rep.Reshape)
	assert.NoFileExists(t, cfg.XLSXPath())
}

func TestRun_NoRows(t *testing.T) {
	cfg := testConfig(t, "")
	header := strings.SplitN(exportCSV, "\n", 2)[0] + "\n"

	_, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{body: header}})
	require.ErrorIs(t, err, reshape.ErrNoRows)
	assert.Equal(t, "DAT001", MapError(err).Code)
}

// failingStore always errors; a run must still complete.
type failingStore struct{ history.NopStore }

func (failingStore) Start(context.Context, *history.Run) error  { return errors.New("db down") }
func (failingStore) Finish(context.Context, *history.Run) error { return errors.New("db down") }

func TestRun_HistoryFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := Run(context.Background(), cfg, Deps{Exporter: &fakeExporter{body: exportCSV}, History: failingStore{}})
	assert.NoError(t, err)
}
