package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	calls   atomic.Int32
	handler func(n int32, w http.ResponseWriter, r *http.Request)
}

func newFakeService(t *testing.T, handler func(n int32, w http.ResponseWriter, r *http.Request)) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler(f.calls.Add(1), w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func reply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newClient(t *testing.T, baseURL string, mutate ...func(*Config)) (*Client, *prometheus.Registry) {
	t.Helper()
	cfg := Config{
		BaseURL:        baseURL,
		APIKey:         "sk-test",
		AttemptTimeout: 100 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	reg := prometheus.NewRegistry()
	c, err := New(cfg, nil, reg)
	require.NoError(t, err)
	return c, reg
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "  "}, nil, nil)
	assert.Error(t, err)
}

func TestGenerate_Success(t *testing.T) {
	var got request
	var headers http.Header
	var path, method string

	svc, srv := newFakeService(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		path, method, headers = r.URL.Path, r.Method, r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(w, http.StatusOK, `{"pattern":"  0,200,100:9  "}`)
	})
	c, _ := newClient(t, srv.URL+"/")

	text, err := c.Generate(context.Background(), "  three quick buzzes ")
	require.NoError(t, err)

	assert.Equal(t, "0, 200:255, 100", text)
	assert.Equal(t, int32(1), svc.calls.Load())
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v1/vibration/pattern", path)
	assert.Equal(t, request{Model: "gpt-5-mini", UserPrompt: "three quick buzzes"}, got)
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
	assert.NotEmpty(t, headers.Get("X-Request-ID"))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues("ok")))
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantLabel string
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrRateLimited, "rate_limited"},
		{"server error", http.StatusInternalServerError, `oops`, ErrRequestFailed, "request_failed"},
		{"bad request", http.StatusBadRequest, `{"error":"no"}`, ErrRequestFailed, "request_failed"},
		{"not json", http.StatusOK, `pattern: 0,100`, ErrInvalidResponse, "invalid_response"},
		{"missing pattern", http.StatusOK, `{}`, ErrInvalidResponse, "invalid_response"},
		{"blank pattern", http.StatusOK, `{"pattern":"   "}`, ErrInvalidResponse, "invalid_response"},
		{"unparseable pattern", http.StatusOK, `{"pattern":"0, 100:999"}`, ErrInvalidResponse, "invalid_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, srv := newFakeService(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
				reply(w, tt.status, tt.body)
			})
			c, _ := newClient(t, srv.URL)

			text, err := c.Generate(context.Background(), "buzz")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, text)
			assert.Equal(t, int32(1), svc.calls.Load(), "only timeouts are retried")
			assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(tt.wantLabel)))
		})
	}
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	svc, srv := newFakeService(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, `{"pattern":"0, 100"}`)
	})
	c, _ := newClient(t, srv.URL)

	_, err := c.Generate(context.Background(), " \t ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, svc.calls.Load())
}

func slowThen(fastAfter int32, body string) func(int32, http.ResponseWriter, *http.Request) {
	return func(n int32, w http.ResponseWriter, r *http.Request) {
		if n <= fastAfter {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		reply(w, http.StatusOK, body)
	}
}

func TestGenerate_RetriesOnceAfterTimeout(t *testing.T) {
	svc, srv := newFakeService(t, slowThen(1, `{"pattern":"0, 300"}`))
	c, _ := newClient(t, srv.URL)

	text, err := c.Generate(context.Background(), "long buzz")
	require.NoError(t, err)
	assert.Equal(t, "0, 300:255", text)
	assert.Equal(t, int32(2), svc.calls.Load())
}

func TestGenerate_GivesUpAfterSecondTimeout(t *testing.T) {
	svc, srv := newFakeService(t, slowThen(10, `{"pattern":"0, 300"}`))
	c, _ := newClient(t, srv.URL)

	_, err := c.Generate(context.Background(), "long buzz")
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int32(2), svc.calls.Load())
}

func TestGenerate_TransportErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := newClient(t, url)
	_, err := c.Generate(context.Background(), "buzz")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestGenerate_LocalRateLimit(t *testing.T) {
	_, srv := newFakeService(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, `{"pattern":"0, 100"}`)
	})
	c, _ := newClient(t, srv.URL, func(cfg *Config) {
		cfg.RateLimit = 0.001
		cfg.Burst = 1
	})

	_, err := c.Generate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "second")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGenerateAsync(t *testing.T) {
	_, srv := newFakeService(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, `{"pattern":"0,50,50,50"}`)
	})
	c, _ := newClient(t, srv.URL)

	select {
	case res := <-c.GenerateAsync("double tap"):
		require.NoError(t, res.Err)
		assert.Equal(t, "0, 50:255, 50, 50:255", res.Pattern)
	case <-time.After(5 * time.Second):
		t.Fatal("no result")
	}
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "empty_prompt", resultLabel(ErrEmptyPrompt))
	assert.Equal(t, "request_failed", resultLabel(context.Canceled))
}
