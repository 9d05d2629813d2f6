// Package upload sends the analysis spreadsheet to the fuel API.
//
// Every request carries a bearer token. Server errors and network failures
// are retried with exponential backoff; authentication and validation
// failures are returned immediately.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/logging"
)

// XLSXContentType is the MIME type sent for the spreadsheet part.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// FormField is the multipart field name the API reads the file from.
const FormField = "file"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

var allowedExtensions = map[string]bool{".xlsx": true, ".xls": true}

// Settings configures a Client.
type Settings struct {
	Endpoint     string
	Token        string
	UploadRoute  string
	StatusRoute  string
	MaxFileSize  int64
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Retry        RetryConfig
}

// SettingsFromConfig builds Settings from the API config section.
func SettingsFromConfig(c config.APIConfig) Settings {
	return Settings{
		Endpoint:     c.URL,
		Token:        c.Token,
		UploadRoute:  c.UploadRoute,
		StatusRoute:  c.StatusRoute,
		MaxFileSize:  c.MaxFileSize,
		Timeout:      c.Timeout,
		ProbeTimeout: c.ProbeTimeout,
		Retry: RetryConfig{
			MaxAttempts:       c.MaxAttempts,
			InitialDelay:      c.InitialDelay,
			MaxDelay:          c.MaxDelay,
			BackoffMultiplier: c.Multiplier,
			Jitter:            true,
		},
	}
}

// Client uploads files to the fuel API.
type Client struct {
	settings Settings
	http     *http.Client
	log      logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for attempt and outcome events.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

// New creates a Client. Zero-valued settings fall back to defaults.
func New(s Settings, opts ...Option) *Client {
	if s.UploadRoute == "" {
		s.UploadRoute = "/importacao-excel/upload"
	}
	if s.StatusRoute == "" {
		s.StatusRoute = "/importacao-excel/status"
	}
	if s.MaxFileSize <= 0 {
		s.MaxFileSize = 50 * 1024 * 1024
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = 10 * time.Second
	}
	if s.Retry.MaxAttempts <= 0 {
		s.Retry = DefaultRetryConfig
	}

	c := &Client{
		settings: s,
		http:     &http.Client{},
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the effective settings.
func (c *Client) Settings() Settings { return c.settings }

func (c *Client) checkConfig() error {
	if strings.TrimSpace(c.settings.Endpoint) == "" {
		return configError("missing endpoint")
	}
	if strings.TrimSpace(c.settings.Token) == "" {
		return configError("missing token")
	}
	return nil
}

func (c *Client) url(route string) string {
	base := strings.TrimRight(c.settings.Endpoint, "/")
	if route == "" {
		return base + "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return base + route
}

// validateFile checks the spreadsheet before any network call.
func (c *Client) validateFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, validationError("file not found: "+path, err)
		}
		return nil, validationError("cannot access file: "+path, err)
	}
	if info.IsDir() {
		return nil, validationError("not a file: "+path, nil)
	}
	if ext := strings.ToLower(filepath.Ext(path)); !allowedExtensions[ext] {
		return nil, validationError(fmt.Sprintf("unsupported file type %q, expected .xlsx or .xls", ext), nil)
	}
	if info.Size() == 0 {
		return nil, validationError("file is empty: "+path, nil)
	}
	if info.Size() > c.settings.MaxFileSize {
		return nil, validationError(fmt.Sprintf("file too large: %d bytes exceeds limit of %d", info.Size(), c.settings.MaxFileSize), nil)
	}
	return info, nil
}

// Upload sends the file at path, retrying server and network failures.
//
// The returned Result is nil only when the request was never attempted
// (configuration or file validation failure). Otherwise it reports the last
// response and the number of attempts, alongside any error.
func (c *Client) Upload(ctx context.Context, path string) (*Result, error) {
	if err := c.checkConfig(); err != nil {
		c.log.Error("upload not attempted", "error", err)
		return nil, err
	}

	info, err := c.validateFile(path)
	if err != nil {
		c.log.Error("upload not attempted", "file", path, "error", err)
		return nil, err
	}

	body, contentType, err := buildBody(path)
	if err != nil {
		return nil, validationError("cannot read file", err)
	}

	res := &Result{FilePath: path, FileSize: info.Size()}
	start := time.Now()
	maxAttempts := c.settings.Retry.attempts()
	target := c.url(c.settings.UploadRoute)

	c.log.Info("uploading spreadsheet", "file", path, "size", info.Size(), "url", target)

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt

		status, data, raw, err := c.post(ctx, target, body, contentType)
		res.HTTPStatus = status
		res.Data = data

		// An accepted file counts even if ctx ended while the response arrived
		uerr := classify(status, data, raw, err)
		if uerr != nil && ctx.Err() != nil {
			res.Duration = time.Since(start)
			return res, &Error{Kind: KindTransient, Message: "upload cancelled", Err: ctx.Err()}
		}
		if uerr == nil {
			res.Success = true
			res.Message = messageFrom(data, "upload succeeded")
			res.UploadID = idFrom(data)
			res.Duration = time.Since(start)
			c.log.Info("upload succeeded",
				"file", path,
				"status", status,
				"attempts", attempt,
				"upload_id", res.UploadID,
				"duration", res.Duration)
			return res, nil
		}

		res.Message = uerr.Message
		if !uerr.Retryable() || attempt >= maxAttempts {
			res.Duration = time.Since(start)
			if uerr.Retryable() {
				uerr.Message = fmt.Sprintf("%s after %d attempts", uerr.Message, attempt)
				res.Message = uerr.Message
			}
			c.log.Error("upload failed",
				"file", path,
				"status", status,
				"kind", uerr.Kind.String(),
				"attempts", attempt,
				"error", uerr)
			return res, uerr
		}

		delay := c.settings.Retry.Delay(attempt)
		c.log.Warn("upload attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"status", status,
			"error", uerr,
			"retry_in", delay)

		if err := sleep(ctx, delay); err != nil {
			res.Duration = time.Since(start)
			return res, &Error{Kind: KindTransient, Message: "upload cancelled", Err: err}
		}
	}
}

// buildBody encodes the file as a single multipart part. The body is kept in
// memory so each retry can resend it.
func buildBody(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, filepath.Base(path)))
	h.Set("Content-Type", XLSXContentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// post performs a single upload attempt bounded by the upload timeout.
func (c *Client) post(ctx context.Context, target string, body []byte, contentType string) (int, map[string]any, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, "", err
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	return c.do(req)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.settings.Token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request) (int, map[string]any, string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, "", err
	}

	var data map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
			data = nil
		}
	}
	return resp.StatusCode, data, strings.TrimSpace(string(raw)), nil
}

// classify maps a response (or transport failure) to an *Error, or nil on success.
func classify(status int, data map[string]any, raw string, err error) *Error {
	if err != nil && status == 0 {
		return &Error{Kind: KindTransient, Message: transportMessage(err), Err: err}
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusUnauthorized:
		return &Error{Kind: KindAuth, Status: status, Message: "authentication failed: invalid or expired token"}
	case status == http.StatusRequestEntityTooLarge:
		return &Error{Kind: KindValidation, Status: status, Message: "file too large for server"}
	case status == http.StatusUnprocessableEntity:
		return &Error{Kind: KindValidation, Status: status, Message: "validation failed: " + messageFrom(data, fallback(raw, "unknown error"))}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Message: "server error"}
	case err != nil:
		// Status received but body unreadable
		return &Error{Kind: KindTransient, Status: status, Message: "reading response failed", Err: err}
	default:
		return &Error{Kind: KindRejected, Status: status, Message: "unexpected response: " + messageFrom(data, fallback(raw, http.StatusText(status)))}
	}
}

func transportMessage(err error) string {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return "request timed out"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "connection failed"
}

func messageFrom(data map[string]any, def string) string {
	if s, ok := data["message"].(string); ok && s != "" {
		return s
	}
	return def
}

func idFrom(data map[string]any) string {
	switch v := data["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// Ping checks that the API base URL answers. Any status below 500 counts
// as reachable; a 404 additionally sets RouteMissing.
func (c *Client) Ping(ctx context.Context) (*ProbeResult, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.settings.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(""), nil)
	if err != nil {
		return nil, configError("invalid endpoint: " + err.Error())
	}
	c.authorize(req)

	start := time.Now()
	status, _, _, err := c.do(req)
	res := &ProbeResult{HTTPStatus: status, Latency: time.Since(start)}

	if status == 0 && err != nil {
		c.log.Warn("api unreachable", "url", c.settings.Endpoint, "error", err)
		return res, &Error{Kind: KindTransient, Message: transportMessage(err), Err: err}
	}
	if status >= 500 {
		c.log.Warn("api unhealthy", "url", c.settings.Endpoint, "status", status)
		return res, &Error{Kind: KindServer, Status: status, Message: "server error"}
	}

	res.Reachable = true
	res.RouteMissing = status == http.StatusNotFound
	c.log.Info("api reachable", "url", c.settings.Endpoint, "status", status, "latency", res.Latency)
	return res, nil
}

// Status fetches the processing status of a previous upload.
func (c *Client) Status(ctx context.Context, uploadID string) (map[string]any, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(uploadID) == "" {
		return nil, validationError("missing upload id", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	target := c.url(strings.TrimRight(c.settings.StatusRoute, "/") + "/" + url.PathEscape(uploadID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, configError("invalid endpoint: " + err.Error())
	}
	c.authorize(req)

	status, data, raw, err := c.do(req)
	if uerr := classify(status, data, raw, err); uerr != nil {
		return data, uerr
	}
	if data == nil {
		return nil, &Error{Kind: KindRejected, Status: status, Message: "status response is not a JSON object"}
	}
	return data, nil
}
