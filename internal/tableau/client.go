// Package tableau talks to the Tableau Cloud REST API: personal access token
// sign-in, workbook and view listing, and CSV download of a view's data.
package tableau

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/fuelsync/internal/config"
	"github.com/JonMunkholm/fuelsync/internal/logging"
)

// ErrExport wraps every failure of the Tableau export step.
var ErrExport = errors.New("tableau export failed")

// ErrNotSignedIn is returned by calls made before SignIn.
var ErrNotSignedIn = errors.New("not signed in to tableau")

// pageSize is the page size requested from list endpoints.
const pageSize = 100

// APIError is a non-success response from the REST API.
type APIError struct {
	Status  int
	Code    string
	Summary string
	Detail  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("tableau api: HTTP %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Summary != "" {
		msg += ": " + e.Summary
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Credentials are the personal access token sign-in parameters.
type Credentials struct {
	TokenName   string
	TokenSecret string
	Site        string // site content URL
}

// Workbook is a workbook summary.
type Workbook struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// View is a view (sheet) summary.
type View struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ContentURL string `json:"contentUrl"`
}

// Client is a Tableau REST API session. It is not safe for concurrent use.
type Client struct {
	server     string
	apiVersion string
	http       *http.Client
	log        logging.Logger

	token  string
	siteID string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

// NewClient creates a client for server using the given REST API version.
func NewClient(server, apiVersion string, timeout time.Duration, opts ...Option) *Client {
	if apiVersion == "" {
		apiVersion = "3.21"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		server:     strings.TrimRight(server, "/"),
		apiVersion: apiVersion,
		http:       &http.Client{Timeout: timeout},
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SiteID returns the site LUID obtained at sign-in.
func (c *Client) SiteID() string { return c.siteID }

func (c *Client) endpoint(format string, args ...any) string {
	return c.server + "/api/" + c.apiVersion + fmt.Sprintf(format, args...)
}

// SignIn authenticates with a personal access token and stores the session.
func (c *Client) SignIn(ctx context.Context, cred Credentials) error {
	var body struct {
		Credentials struct {
			Name   string `json:"personalAccessTokenName"`
			Secret string `json:"personalAccessTokenSecret"`
			Site   struct {
				ContentURL string `json:"contentUrl"`
			} `json:"site"`
		} `json:"credentials"`
	}
	body.Credentials.Name = cred.TokenName
	body.Credentials.Secret = cred.TokenSecret
	body.Credentials.Site.ContentURL = cred.Site

	var resp struct {
		Credentials struct {
			Token string `json:"token"`
			Site  struct {
				ID string `json:"id"`
			} `json:"site"`
		} `json:"credentials"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoint("/auth/signin"), body, &resp, false); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if resp.Credentials.Token == "" {
		return errors.New("sign in: response carried no token")
	}

	c.token = resp.Credentials.Token
	c.siteID = resp.Credentials.Site.ID
	c.log.Info("signed in to tableau", "server", c.server, "site", cred.Site, "api_version", c.apiVersion)
	return nil
}

// SignOut ends the session. Calling it when not signed in is a no-op.
func (c *Client) SignOut(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	err := c.doJSON(ctx, http.MethodPost, c.endpoint("/auth/signout"), nil, nil, true)
	c.token = ""
	c.siteID = ""
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

type pagination struct {
	PageNumber     string `json:"pageNumber"`
	PageSize       string `json:"pageSize"`
	TotalAvailable string `json:"totalAvailable"`
}

// more reports whether pages beyond page remain.
func (p pagination) more(page int) bool {
	total, err := strconv.Atoi(p.TotalAvailable)
	if err != nil {
		return false
	}
	return page*pageSize < total
}

// ListWorkbooks returns every workbook on the site.
func (c *Client) ListWorkbooks(ctx context.Context) ([]Workbook, error) {
	if c.token == "" {
		return nil, ErrNotSignedIn
	}

	var all []Workbook
	for page := 1; ; page++ {
		var resp struct {
			Pagination pagination `json:"pagination"`
			Workbooks  struct {
				Workbook []Workbook `json:"workbook"`
			} `json:"workbooks"`
		}
		u := c.endpoint("/sites/%s/workbooks?pageSize=%d&pageNumber=%d", url.PathEscape(c.siteID), pageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp, true); err != nil {
			return nil, fmt.Errorf("list workbooks: %w", err)
		}
		all = append(all, resp.Workbooks.Workbook...)
		if !resp.Pagination.more(page) {
			return all, nil
		}
	}
}

// ListViews returns the views of a workbook.
func (c *Client) ListViews(ctx context.Context, workbookID string) ([]View, error) {
	if c.token == "" {
		return nil, ErrNotSignedIn
	}

	var resp struct {
		Views struct {
			View []View `json:"view"`
		} `json:"views"`
	}
	u := c.endpoint("/sites/%s/workbooks/%s/views", url.PathEscape(c.siteID), url.PathEscape(workbookID))
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("list views of workbook %s: %w", workbookID, err)
	}
	return resp.Views.View, nil
}

// DownloadViewCSV streams the CSV data of a view into w and returns the byte count.
func (c *Client) DownloadViewCSV(ctx context.Context, viewID string, w io.Writer) (int64, error) {
	if c.token == "" {
		return 0, ErrNotSignedIn
	}

	u := c.endpoint("/sites/%s/views/%s/data", url.PathEscape(c.siteID), url.PathEscape(viewID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Tableau-Auth", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download view %s: %w", viewID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download view %s: %w", viewID, decodeAPIError(resp))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download view %s: %w", viewID, err)
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("X-Tableau-Auth", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Summary string `json:"summary"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Code = payload.Error.Code
		apiErr.Summary = payload.Error.Summary
		apiErr.Detail = payload.Error.Detail
	}
	if apiErr.Summary == "" {
		apiErr.Summary = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// CredentialsFromConfig extracts sign-in parameters from the Tableau section.
func CredentialsFromConfig(t config.TableauConfig) Credentials {
	return Credentials{
		TokenName:   t.TokenName,
		TokenSecret: t.TokenValue,
		Site:        t.SiteID,
	}
}
