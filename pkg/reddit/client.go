// Package reddit is a small client for the Reddit OAuth API covering
// submissions, image uploads and link flair lookup.
package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"redditscheduler/internal/constants"
	apperrors "redditscheduler/internal/errors"
	"redditscheduler/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxErrorBodyBytes = 4096

type Client interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	UploadImage(ctx context.Context, name, mimeType string, data []byte) (string, error)
	LinkFlairs(ctx context.Context, subreddit string) ([]models.Flair, error)
	Username() string
}

// Config holds credentials and endpoints for a script-type Reddit app
type Config struct {
	ClientID       string
	ClientSecret   string
	Username       string
	Password       string
	UserAgent      string
	APIBaseURL     string
	AuthURL        string
	RequestsPerSec float64
	Burst          int
}

// ConfigFromModel converts the file configuration, applying defaults
func ConfigFromModel(m models.RedditConfig) Config {
	cfg := Config{
		ClientID:       m.ClientID,
		ClientSecret:   m.ClientSecret,
		Username:       m.Username,
		Password:       m.Password,
		UserAgent:      m.UserAgent,
		APIBaseURL:     m.APIBaseURL,
		AuthURL:        m.AuthURL,
		RequestsPerSec: m.RequestsPerSec,
		Burst:          m.Burst,
	}
	return cfg
}

type RedditClient struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *RedditClient {
	return NewClientWithLogger(cfg, httpClient, nil)
}

func NewClientWithLogger(cfg Config, httpClient *http.Client, logger *logrus.Logger) *RedditClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultRedditTimeoutSec * time.Second}
	}

	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = constants.DefaultRedditAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")
	if cfg.AuthURL == "" {
		cfg.AuthURL = constants.DefaultRedditAuthURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.DefaultRedditUserAgent
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = constants.DefaultRedditRequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = constants.DefaultRedditBurst
	}

	return &RedditClient{
		cfg:     cfg,
		client:  httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		logger:  logger,
		now:     time.Now,
	}
}

func (c *RedditClient) Username() string {
	return c.cfg.Username
}

// Submit creates a post. API-level errors reported in json.errors are
// returned as REDDIT_API AppErrors. Image posts are confirmed over the
// websocket Reddit returns, so a failed media job is an error too.
func (c *RedditClient) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", req.Subreddit)
	form.Set("title", req.Title)
	form.Set("kind", string(req.Kind))
	form.Set("resubmit", "true")

	switch req.Kind {
	case KindLink, KindImage:
		form.Set("url", req.URL)
	case KindSelf:
		form.Set("text", req.Text)
	default:
		return nil, fmt.Errorf("unsupported submission kind: %q", req.Kind)
	}

	if req.FlairID != "" {
		form.Set("flair_id", req.FlairID)
	}
	if req.FlairText != "" {
		form.Set("flair_text", req.FlairText)
	}

	body, status, err := c.doForm(ctx, http.MethodPost, "/api/submit", form)
	if err != nil {
		return nil, err
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.NewAPIError("/api/submit", status, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(resp.JSON.Errors) > 0 {
		return nil, apperrors.NewAPIError("/api/submit", status, fmt.Errorf("%s", resp.JSON.Errors.String()))
	}

	result := &SubmitResult{ID: resp.JSON.Data.ID, Name: resp.JSON.Data.Name, URL: resp.JSON.Data.URL}
	if req.Kind == KindImage && resp.JSON.Data.WebsocketURL != "" {
		postURL, err := c.awaitMediaPost(ctx, resp.JSON.Data.WebsocketURL)
		if err != nil {
			return nil, err
		}
		result.URL = postURL
	}

	c.logger.WithFields(logrus.Fields{
		"subreddit": req.Subreddit,
		"kind":      req.Kind,
		"post_name": result.Name,
		"post_url":  result.URL,
	}).Debug("Reddit submission created")

	return result, nil
}

// UploadImage obtains a media lease and uploads data to it, returning the
// hosted image URL for a KindImage submission.
func (c *RedditClient) UploadImage(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	form := url.Values{}
	form.Set("filepath", name)
	form.Set("mimetype", mimeType)

	body, status, err := c.doForm(ctx, http.MethodPost, "/api/media/asset.json", form)
	if err != nil {
		return "", err
	}

	var lease mediaLeaseResponse
	if err := json.Unmarshal(body, &lease); err != nil {
		return "", apperrors.NewAPIError("/api/media/asset.json", status, fmt.Errorf("failed to decode media lease: %w", err))
	}
	if lease.Args.Action == "" {
		return "", apperrors.NewAPIError("/api/media/asset.json", status, fmt.Errorf("media lease has no upload action"))
	}

	action := lease.Args.Action
	if strings.HasPrefix(action, "//") {
		action = "https:" + action
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	var key string
	for _, f := range lease.Args.Fields {
		if f.Name == "key" {
			key = f.Value
		}
		if err := writer.WriteField(f.Name, f.Value); err != nil {
			return "", fmt.Errorf("failed to write lease field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, action, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	uploadReq.Header.Set("Content-Type", writer.FormDataContentType())
	uploadReq.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(uploadReq)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", apperrors.NewAPIError("media upload", resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return strings.TrimSuffix(action, "/") + "/" + key, nil
}

// LinkFlairs lists the link flair templates of a subreddit
func (c *RedditClient) LinkFlairs(ctx context.Context, subreddit string) ([]models.Flair, error) {
	path := fmt.Sprintf("/r/%s/api/link_flair_v2", url.PathEscape(subreddit))

	body, status, err := c.doForm(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var raw []linkFlair
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.NewAPIError(path, status, fmt.Errorf("failed to decode flairs: %w", err))
	}

	flairs := make([]models.Flair, 0, len(raw))
	for _, f := range raw {
		flairs = append(flairs, models.Flair{ID: f.ID, Text: f.Text, Editable: f.TextEditable})
	}
	return flairs, nil
}

// doForm performs an authenticated API call. A 401 drops the cached token
// and retries once with a fresh one.
func (c *RedditClient) doForm(ctx context.Context, method, path string, form url.Values) ([]byte, int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limiter: %w", err)
		}

		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, 0, err
		}

		endpoint := c.cfg.APIBaseURL + path
		var bodyReader io.Reader
		if method != http.MethodGet && form != nil {
			bodyReader = strings.NewReader(form.Encode())
		} else if form != nil {
			endpoint += "?" + form.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "bearer "+token)
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if bodyReader != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to send request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.invalidateToken()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resp.StatusCode, apperrors.NewAPIError(path, resp.StatusCode,
				fmt.Errorf("status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(body)), maxErrorBodyBytes)))
		}
		return body, resp.StatusCode, nil
	}
	return nil, http.StatusUnauthorized, apperrors.NewAuthError("reddit rejected refreshed access token")
}

func (c *RedditClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", apperrors.NewAuthError(fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
		}
		return "", apperrors.NewAPIError("access_token", resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", apperrors.NewAuthError(fmt.Sprintf("token endpoint error: %s", tok.Error))
	}

	lifetime := time.Duration(tok.ExpiresIn)*time.Second - constants.DefaultTokenExpirySlackSec*time.Second
	if lifetime < 0 {
		lifetime = 0
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(lifetime)

	c.logger.WithField("expires_in", tok.ExpiresIn).Debug("Obtained Reddit access token")
	return c.token, nil
}

func (c *RedditClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
