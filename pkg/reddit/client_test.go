package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	apperrors "redditscheduler/internal/errors"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReddit struct {
	t            *testing.T
	server       *httptest.Server
	tokenCalls   int32
	submitCalls  int32
	lastSubmit   atomic.Value
	submitStatus int
	submitBody   string
	rejectTokens int32
	mediaFrames  []string
}

func newFakeReddit(t *testing.T) *fakeReddit {
	f := &fakeReddit{t: t, submitStatus: http.StatusOK}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "scheduler_bot", r.PostForm.Get("username"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": fmt.Sprintf("token-%d", atomic.LoadInt32(&f.tokenCalls)),
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})

	mux.HandleFunc("/api/submit", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.submitCalls, 1)
		if atomic.LoadInt32(&f.rejectTokens) > 0 {
			atomic.AddInt32(&f.rejectTokens, -1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "bearer token-"))
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		require.NoError(t, r.ParseForm())
		f.lastSubmit.Store(r.PostForm)

		w.WriteHeader(f.submitStatus)
		if f.submitBody != "" {
			_, _ = io.WriteString(w, f.submitBody)
			return
		}
		_, _ = io.WriteString(w, `{"json":{"errors":[],"data":{"id":"abc","name":"t3_abc","url":"https://reddit.com/r/golang/comments/abc"}}}`)
	})

	mux.HandleFunc("/api/media/asset.json", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cat.png", r.PostForm.Get("filepath"))
		assert.Equal(t, "image/png", r.PostForm.Get("mimetype"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"args": map[string]interface{}{
				"action": f.server.URL + "/upload",
				"fields": []map[string]string{
					{"name": "key", "value": "abc/cat.png"},
					{"name": "policy", "value": "p"},
				},
			},
			"asset": map[string]string{"asset_id": "asset1"},
		})
	})

	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "abc/cat.png", r.FormValue("key"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "PNGDATA", string(data))
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/media-status", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.CloseNow()
		for _, frame := range f.mediaFrames {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		// hold the connection open until the client hangs up
		_, _, _ = conn.Read(r.Context())
	})

	mux.HandleFunc("/r/golang/api/link_flair_v2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"f1","text":"Discussion","text_editable":false},{"id":"f2","text":"Show","text_editable":true}]`)
	})

	mux.HandleFunc("/r/private/api/link_flair_v2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"reason":"private"}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeReddit) client() *RedditClient {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewClientWithLogger(Config{
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		Username:       "scheduler_bot",
		Password:       "pw",
		UserAgent:      "test-agent/1.0",
		APIBaseURL:     f.server.URL,
		AuthURL:        f.server.URL + "/api/v1/access_token",
		RequestsPerSec: 1000,
		Burst:          100,
	}, f.server.Client(), logger)
}

func TestSubmit_Link(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()

	res, err := c.Submit(context.Background(), SubmitRequest{
		Subreddit: "golang",
		Title:     "Go 1.26 released",
		Kind:      KindLink,
		URL:       "https://go.dev/blog",
		FlairID:   "f1",
		FlairText: "News",
	})
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", res.Name)

	form := f.lastSubmit.Load().(url.Values)
	assert.Equal(t, "golang", form["sr"][0])
	assert.Equal(t, "link", form["kind"][0])
	assert.Equal(t, "https://go.dev/blog", form["url"][0])
	assert.Equal(t, "f1", form["flair_id"][0])
	assert.Equal(t, "News", form["flair_text"][0])
	assert.Equal(t, "json", form["api_type"][0])
}

func TestSubmit_SelfOmitsEmptyFlair(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()

	_, err := c.Submit(context.Background(), SubmitRequest{Subreddit: "u_scheduler_bot", Title: "t", Kind: KindSelf, Text: "hello"})
	require.NoError(t, err)

	form := f.lastSubmit.Load().(url.Values)
	assert.Equal(t, "self", form["kind"][0])
	assert.Equal(t, "hello", form["text"][0])
	assert.NotContains(t, form, "flair_id")
	assert.NotContains(t, form, "url")
}

func TestSubmit_TokenCached(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Submit(ctx, SubmitRequest{Subreddit: "golang", Title: "t", Kind: KindSelf, Text: "x"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
}

func TestSubmit_TokenRefreshedAfterExpiry(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Submit(ctx, SubmitRequest{Subreddit: "golang", Title: "t", Kind: KindSelf, Text: "x"})
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = c.Submit(ctx, SubmitRequest{Subreddit: "golang", Title: "t", Kind: KindSelf, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
}

func TestSubmit_RetriesOnceOnUnauthorized(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()
	atomic.StoreInt32(&f.rejectTokens, 1)

	_, err := c.Submit(context.Background(), SubmitRequest{Subreddit: "golang", Title: "t", Kind: KindSelf, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.submitCalls))
}

func TestSubmit_APIErrors(t *testing.T) {
	f := newFakeReddit(t)
	f.submitBody = `{"json":{"errors":[["SUBREDDIT_NOEXIST","that subreddit doesn't exist","sr"]]}}`
	c := f.client()

	_, err := c.Submit(context.Background(), SubmitRequest{Subreddit: "nope", Title: "t", Kind: KindSelf, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUBREDDIT_NOEXIST: that subreddit doesn't exist (sr)")
	assert.Equal(t, apperrors.ErrCodeRedditAPI, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestSubmit_RateLimitedStatus(t *testing.T) {
	f := newFakeReddit(t)
	f.submitStatus = http.StatusTooManyRequests
	f.submitBody = `rate limited`
	c := f.client()

	_, err := c.Submit(context.Background(), SubmitRequest{Subreddit: "golang", Title: "t", Kind: KindSelf, Text: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimit, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSubmit_BadCredentials(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()
	c.cfg.ClientSecret = "wrong"

	_, err := c.Submit(context.Background(), SubmitRequest{Subreddit: "golang", Title: "t", Kind: KindSelf, Text: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAuthentication, apperrors.GetCode(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.submitCalls))
}

func TestSubmit_UnsupportedKind(t *testing.T) {
	f := newFakeReddit(t)
	_, err := f.client().Submit(context.Background(), SubmitRequest{Subreddit: "golang", Title: "t", Kind: Kind("video")})
	assert.Error(t, err)
}

func (f *fakeReddit) imageSubmitBody() string {
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/media-status"
	return fmt.Sprintf(`{"json":{"errors":[],"data":{"user_submitted_page":"https://reddit.com/user/scheduler_bot/submitted/","websocket_url":%q}}}`, wsURL)
}

func imageRequest() SubmitRequest {
	return SubmitRequest{Subreddit: "golang", Title: "cat", Kind: KindImage, URL: "https://reddit-uploaded-media.s3.amazonaws.com/abc/cat.png"}
}

func TestSubmit_ImageWaitsForMediaSuccess(t *testing.T) {
	f := newFakeReddit(t)
	f.submitBody = f.imageSubmitBody()
	f.mediaFrames = []string{
		`{"type":"progress"}`,
		`{"type":"success","payload":{"redirect":"https://www.reddit.com/r/golang/comments/xyz/cat/"}}`,
	}

	res, err := f.client().Submit(context.Background(), imageRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://www.reddit.com/r/golang/comments/xyz/cat/", res.URL)

	form := f.lastSubmit.Load().(url.Values)
	assert.Equal(t, "image", form.Get("kind"))
}

func TestSubmit_ImageMediaFailed(t *testing.T) {
	f := newFakeReddit(t)
	f.submitBody = f.imageSubmitBody()
	f.mediaFrames = []string{`{"type":"failed","payload":{}}`}

	_, err := f.client().Submit(context.Background(), imageRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process the image post")
	assert.Equal(t, apperrors.ErrCodeRedditAPI, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestSubmit_ImageMediaWaitBoundedByContext(t *testing.T) {
	f := newFakeReddit(t)
	f.submitBody = f.imageSubmitBody()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.client().Submit(ctx, imageRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media status unavailable")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSubmit_ImageWithoutWebsocketURL(t *testing.T) {
	f := newFakeReddit(t)

	res, err := f.client().Submit(context.Background(), imageRequest())
	require.NoError(t, err)
	assert.Equal(t, "t3_abc", res.Name)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "é", truncate("éé", 3))
	assert.Equal(t, "", truncate("€", 2))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("ü", 3000), maxErrorBodyBytes-1)))
}

func TestUploadImage(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()

	imageURL, err := c.UploadImage(context.Background(), "cat.png", "image/png", []byte("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, f.server.URL+"/upload/abc/cat.png", imageURL)
}

func TestLinkFlairs(t *testing.T) {
	f := newFakeReddit(t)
	c := f.client()

	flairs, err := c.LinkFlairs(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, flairs, 2)
	assert.Equal(t, "f1", flairs[0].ID)
	assert.Equal(t, "Discussion", flairs[0].Text)
	assert.True(t, flairs[1].Editable)

	_, err = c.LinkFlairs(context.Background(), "private")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestAPIErrorsString(t *testing.T) {
	errs := apiErrors{
		{"RATELIMIT", "you are doing that too much", "ratelimit"},
		{"BAD_URL", "invalid url"},
		{"ONLY_CODE"},
		{},
	}
	assert.Equal(t, "RATELIMIT: you are doing that too much (ratelimit); BAD_URL: invalid url; ONLY_CODE", errs.String())
}

func TestProfileSubreddit(t *testing.T) {
	assert.Equal(t, "u_scheduler_bot", ProfileSubreddit("scheduler_bot"))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, nil)
	assert.Equal(t, "https://oauth.reddit.com", c.cfg.APIBaseURL)
	assert.Equal(t, "https://www.reddit.com/api/v1/access_token", c.cfg.AuthURL)
	assert.Equal(t, 5, c.limiter.Burst())
}
