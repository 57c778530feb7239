package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":12345"
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(h, fromIP("192.168.1.1"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.1")).Code)
	}

	w := serve(h, fromIP("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var (
		code int
		msg  string
	)
	err := jx.DecodeBytes(w.Body.Bytes()).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			code, err = d.Int()
		case "message":
			msg, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, fromIP("10.0.0.1")).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			if u := r.Header.Get("X-User"); u != "" {
				return "user:" + u
			}
			return "ip:" + ClientIP(r)
		},
	})(okHandler())

	asUser := func(user, ip string) *http.Request {
		req := fromIP(ip)
		req.Header.Set("X-User", user)
		return req
	}

	assert.Equal(t, http.StatusOK, serve(h, asUser("a", "10.0.0.1")).Code)
	// Same user from another address shares the budget.
	assert.Equal(t, http.StatusTooManyRequests, serve(h, asUser("a", "10.0.0.9")).Code)
	assert.Equal(t, http.StatusOK, serve(h, asUser("b", "10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, serve(h, fromIP("10.0.0.1")).Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded list", headers: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, remote: "192.168.1.1:1", want: "203.0.113.50"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "192.168.1.1:1", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote without port", remote: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", start.Add(30*time.Second))
	assert.False(t, ok, "window is full")

	// Halfway into the next window half of the previous count still applies.
	_, _, ok = l.take("k", start.Add(90*time.Second))
	assert.True(t, ok)
	_, _, ok = l.take("k", start.Add(90*time.Second))
	assert.True(t, ok)
	_, _, ok = l.take("k", start.Add(90*time.Second))
	assert.False(t, ok)

	// Two idle windows forget everything.
	remaining, _, ok := l.take("k", start.Add(4*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	l.take("old", start)
	l.take("fresh", start.Add(2*time.Minute))
	l.evict(start.Add(2*time.Minute + time.Second))

	assert.NotContains(t, l.counters, "old")
	assert.Contains(t, l.counters, "fresh")
}
