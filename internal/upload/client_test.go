package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	status int
	body   string
}

// sequenceServer answers with responses in order, repeating the last one.
func sequenceServer(t *testing.T, responses ...response) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(responses[n].status)
		io.WriteString(w, responses[n].body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeXLSX(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ANALISE_DE_PEDIDOS.xlsx")
	data := make([]byte, size)
	copy(data, "PK\x03\x04")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testSettings(endpoint string) Settings {
	return Settings{
		Endpoint: endpoint,
		Token:    "secret",
		Timeout:  2 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
	}
}

func TestUpload_Success(t *testing.T) {
	var gotAuth, gotAccept, gotField, gotName, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/importacao-excel/upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for field, files := range r.MultipartForm.File {
			gotField = field
			gotName = files[0].Filename
			gotType = files[0].Header.Get("Content-Type")
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"message":"Importação concluída","id":"abc-1"}`)
	}))
	defer srv.Close()

	res, err := New(testSettings(srv.URL)).Upload(context.Background(), writeXLSX(t, 64))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, http.StatusCreated, res.HTTPStatus)
	assert.Equal(t, "Importação concluída", res.Message)
	assert.Equal(t, "abc-1", res.UploadID)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "file", gotField)
	assert.Equal(t, "ANALISE_DE_PEDIDOS.xlsx", gotName)
	assert.Equal(t, XLSXContentType, gotType)
}

func TestUpload_MissingTokenMakesNoRequest(t *testing.T) {
	srv, calls := sequenceServer(t, response{http.StatusCreated, `{}`})
	s := testSettings(srv.URL)
	s.Token = ""

	res, err := New(s).Upload(context.Background(), writeXLSX(t, 10))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUpload_MissingEndpoint(t *testing.T) {
	s := testSettings("")
	_, err := New(s).Upload(context.Background(), writeXLSX(t, 10))
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "missing endpoint")
}

func TestUpload_FileChecksMakeNoRequest(t *testing.T) {
	srv, calls := sequenceServer(t, response{http.StatusCreated, `{}`})
	s := testSettings(srv.URL)
	s.MaxFileSize = 100

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("a,b"), 0644))
	emptyPath := filepath.Join(dir, "empty.xlsx")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0644))

	tests := []struct {
		name string
		path string
		msg  string
	}{
		{"not found", filepath.Join(dir, "nope.xlsx"), "file not found"},
		{"too large", writeXLSX(t, 101), "file too large"},
		{"wrong extension", csvPath, "unsupported file type"},
		{"empty", emptyPath, "file is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(s).Upload(context.Background(), tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestUpload_AuthFailureNotRetried(t *testing.T) {
	srv, calls := sequenceServer(t,
		response{http.StatusUnauthorized, `{"message":"invalid token"}`},
		response{http.StatusCreated, `{}`},
	)

	res, err := New(testSettings(srv.URL)).Upload(context.Background(), writeXLSX(t, 10))
	assert.ErrorIs(t, err, ErrAuth)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusUnauthorized, res.HTTPStatus)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	srv, calls := sequenceServer(t,
		response{http.StatusServiceUnavailable, ``},
		response{http.StatusServiceUnavailable, ``},
		response{http.StatusCreated, `{"message":"ok"}`},
	)

	res, err := New(testSettings(srv.URL)).Upload(context.Background(), writeXLSX(t, 10))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUpload_RetriesExhausted(t *testing.T) {
	srv, calls := sequenceServer(t, response{http.StatusBadGateway, `bad gateway`})

	res, err := New(testSettings(srv.URL)).Upload(context.Background(), writeXLSX(t, 10))
	assert.ErrorIs(t, err, ErrServer)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, http.StatusBadGateway, res.HTTPStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUpload_ValidationResponses(t *testing.T) {
	tests := []struct {
		name   string
		resp   response
		target error
		msg    string
	}{
		{"payload too large", response{http.StatusRequestEntityTooLarge, ``}, ErrValidation, "file too large for server"},
		{"unprocessable", response{http.StatusUnprocessableEntity, `{"message":"coluna Cidades ausente"}`}, ErrValidation, "coluna Cidades ausente"},
		{"unprocessable without json", response{http.StatusUnprocessableEntity, `plain text`}, ErrValidation, "plain text"},
		{"forbidden", response{http.StatusForbidden, `{"message":"no access"}`}, ErrRejected, "no access"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := sequenceServer(t, tt.resp)
			res, err := New(testSettings(srv.URL)).Upload(context.Background(), writeXLSX(t, 10))
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, tt.resp.status, res.HTTPStatus)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestUpload_ConnectionFailureRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res, err := New(testSettings(url)).Upload(context.Background(), writeXLSX(t, 10))
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 0, res.HTTPStatus)
}

func TestUpload_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := testSettings(srv.URL)
	s.Timeout = 20 * time.Millisecond
	s.Retry.MaxAttempts = 2

	res, err := New(s).Upload(context.Background(), writeXLSX(t, 10))
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 2, res.Attempts)
}

func TestUpload_CancelStopsRetrying(t *testing.T) {
	srv, calls := sequenceServer(t, response{http.StatusServiceUnavailable, ``})
	s := testSettings(srv.URL)
	s.Retry.InitialDelay = time.Hour
	s.Retry.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := New(s).Upload(ctx, writeXLSX(t, 10))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// cancellingTransport cancels the caller's context, then answers with status.
func cancellingTransport(cancel context.CancelFunc, status int, body string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		cancel()
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})}
}

func TestUpload_AcceptedDespiteLateCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(testSettings("http://api.invalid"),
		WithHTTPClient(cancellingTransport(cancel, http.StatusCreated, `{"message":"ok","id":"u-1"}`)))

	res, err := c.Upload(ctx, writeXLSX(t, 64))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "u-1", res.UploadID)
	assert.Equal(t, 1, res.Attempts)
}

func TestUpload_FailureWithLateCancelIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(testSettings("http://api.invalid"),
		WithHTTPClient(cancellingTransport(cancel, http.StatusServiceUnavailable, `{"message":"busy"}`)))

	res, err := c.Upload(ctx, writeXLSX(t, 64))
	require.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}

func TestPing(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reachable bool
		missing   bool
	}{
		{"ok", http.StatusOK, true, false},
		{"not found", http.StatusNotFound, true, true},
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"server error", http.StatusInternalServerError, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path, auth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				auth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			res, err := New(testSettings(srv.URL + "/")).Ping(context.Background())
			require.NotNil(t, res)
			assert.Equal(t, tt.reachable, res.Reachable)
			assert.Equal(t, tt.missing, res.RouteMissing)
			assert.Equal(t, tt.status, res.HTTPStatus)
			assert.Equal(t, tt.reachable, err == nil)
			assert.Equal(t, "/", path)
			assert.Equal(t, "Bearer secret", auth)
		})
	}
}

func TestPing_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res, err := New(testSettings(url)).Ping(context.Background())
	assert.ErrorIs(t, err, ErrTransient)
	assert.False(t, res.Reachable)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/importacao-excel/status/abc-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"id":"abc-1","status":"processed","rows":12}`)
	}))
	defer srv.Close()

	c := New(testSettings(srv.URL))

	doc, err := c.Status(context.Background(), "abc-1")
	require.NoError(t, err)
	assert.Equal(t, "processed", doc["status"])
	assert.Equal(t, float64(12), doc["rows"])

	_, err = c.Status(context.Background(), "other")
	assert.ErrorIs(t, err, ErrRejected)

	_, err = c.Status(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestKindOf(t *testing.T) {
	err := &Error{Kind: KindAuth, Status: 401, Message: "denied"}
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, "denied (HTTP 401)", err.Error())
	assert.False(t, err.Retryable())
}
