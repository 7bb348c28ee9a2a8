package homebox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Duelion/homebox-companion-sub001/internal/logging"
	"github.com/Duelion/homebox-companion-sub001/internal/scan"
	"github.com/Duelion/homebox-companion-sub001/internal/services"
	"github.com/Duelion/homebox-companion-sub001/internal/services/retry"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 4096
	userAgent        = "homebox-scan/1.0"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config captures the Homebox connection settings.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
	RetryAttempts  int
}

// Client is a thin REST client for the Homebox API.
type Client struct {
	baseURL string
	http    HTTPDoer
	retry   retry.Policy
	logger  *slog.Logger
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP backend.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithLogger sets the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient constructs a Homebox client. BaseURL should include the /api/v1 prefix.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	policy := retry.DefaultPolicy()
	if cfg.RetryAttempts > 0 {
		policy.MaxAttempts = cfg.RetryAttempts
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "homebox")
	return c
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string, stayLoggedIn bool) (Session, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("stayLoggedIn", strconv.FormatBool(stayLoggedIn))

	var resp loginResponse
	err := c.retry.Do(ctx, "homebox login", func(ctx context.Context, _ int) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/users/login", "", strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return c.do(req, "login", &resp)
	})
	if err != nil {
		return Session{}, err
	}

	token := strings.TrimSpace(firstNonEmpty(resp.Token, resp.JWT, resp.AccessToken))
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Session{}, services.Wrap(services.ErrExternal, "homebox", "login", "response did not include a token", nil)
	}
	session := Session{Token: token}
	if resp.ExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			session.ExpiresAt = ts
		}
	}
	c.logger.Info("homebox login succeeded", logging.String("username", username))
	return session, nil
}

// Locations lists all locations.
func (c *Client) Locations(ctx context.Context, token string) ([]Location, error) {
	var out []Location
	if err := c.getJSON(ctx, token, "/locations", "list locations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Location fetches one location with its children.
func (c *Client) Location(ctx context.Context, token, id string) (LocationDetail, error) {
	var out LocationDetail
	if err := c.getJSON(ctx, token, "/locations/"+url.PathEscape(id), "get location", &out); err != nil {
		return LocationDetail{}, err
	}
	return out, nil
}

// LocationTree fetches the nested location hierarchy without items.
func (c *Client) LocationTree(ctx context.Context, token string) ([]TreeNode, error) {
	var out []TreeNode
	if err := c.getJSON(ctx, token, "/locations/tree?withItems=false", "location tree", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Labels lists all labels.
func (c *Client) Labels(ctx context.Context, token string) ([]Label, error) {
	var out []Label
	if err := c.getJSON(ctx, token, "/labels", "list labels", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetItem fetches full item details.
func (c *Client) GetItem(ctx context.Context, token, id string) (Item, error) {
	var out Item
	if err := c.getJSON(ctx, token, "/items/"+url.PathEscape(id), "get item", &out); err != nil {
		return Item{}, err
	}
	return out, nil
}

// SearchItems runs a free-text item query.
func (c *Client) SearchItems(ctx context.Context, token, query string) ([]ItemSummary, error) {
	var out searchResponse
	path := "/items?q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, token, path, "search items", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateItem creates an item. The request is only retried when the server
// rejected it with 429, since other failures may have created the item.
func (c *Client) CreateItem(ctx context.Context, token string, payload ItemCreate) (Item, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("marshal item: %w", err)
	}
	var out Item
	err = c.retry.Do(ctx, "homebox create item", func(ctx context.Context, _ int) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/items", token, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return onlyThrottled(c.do(req, "create item", &out))
	})
	if err != nil {
		return Item{}, err
	}
	if out.ID == "" {
		return Item{}, services.Wrap(services.ErrExternal, "homebox", "create item", "response did not include an id", nil)
	}
	return out, nil
}

// UpdateItem replaces an item's fields.
func (c *Client) UpdateItem(ctx context.Context, token, id string, payload ItemUpdate) (Item, error) {
	if payload.ID == "" {
		payload.ID = id
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("marshal item update: %w", err)
	}
	var out Item
	err = c.retry.Do(ctx, "homebox update item", func(ctx context.Context, _ int) error {
		req, err := c.newRequest(ctx, http.MethodPut, "/items/"+url.PathEscape(id), token, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, "update item", &out)
	})
	if err != nil {
		return Item{}, err
	}
	return out, nil
}

// UploadAttachment uploads an image as a photo attachment.
func (c *Client) UploadAttachment(ctx context.Context, token, itemID string, file scan.File, primary bool) error {
	body, contentType, err := encodeAttachment(file, primary)
	if err != nil {
		return err
	}
	return c.retry.Do(ctx, "homebox upload attachment", func(ctx context.Context, _ int) error {
		req, err := c.newRequest(ctx, http.MethodPost, "/items/"+url.PathEscape(itemID)+"/attachments", token, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		return c.do(req, "upload attachment", nil)
	})
}

func encodeAttachment(file scan.File, primary bool) ([]byte, string, error) {
	name := strings.TrimSpace(file.Name)
	if name == "" {
		name = file.ID + extensionFor(file.MimeType)
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", file.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	fields := [][2]string{{"type", "photo"}, {"name", name}, {"primary", strconv.FormatBool(primary)}}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}

func (c *Client) getJSON(ctx context.Context, token, path, op string, out any) error {
	return c.retry.Do(ctx, "homebox "+op, func(ctx context.Context, _ int) error {
		req, err := c.newRequest(ctx, http.MethodGet, path, token, nil)
		if err != nil {
			return err
		}
		return c.do(req, op, out)
	})
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "homebox", "request", "base url not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("homebox %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		statusErr := retry.NewStatusError("homebox", resp, body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return services.Wrap(services.ErrUnauthorized, "homebox", op, "token rejected", statusErr)
		case http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "homebox", op, "", statusErr)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return services.Wrap(services.ErrValidation, "homebox", op, "", statusErr)
		default:
			return services.Wrap(services.ErrExternal, "homebox", op, "", statusErr)
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrExternal, "homebox", op, "decode response", err)
	}
	return nil
}

// onlyThrottled hides retryable status information from everything except 429.
func onlyThrottled(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return err
	}
	return permanent{err}
}

type permanent struct{ err error }

func (p permanent) Error() string   { return p.err.Error() }
func (p permanent) Unwrap() error   { return p.err }
func (p permanent) Retryable() bool { return false }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
