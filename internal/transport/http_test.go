package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/payload"
)

const (
	testKey    = "0123456789abcdef0123456789abcdef"
	testSecret = "0123456789abcdef0123456789abcdef01234567"
)

func newTestClient(url string, opts ...HTTPOption) *HTTPClient {
	opts = append([]HTTPOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewHTTPClient(url, testKey, testSecret, opts...)
}

func TestPostInit_DecodesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/"+testKey+"/init", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, Sign(testSecret, body), r.Header.Get("Authorization"))

		var req InitRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "linux", req.Platform)
		assert.Equal(t, "abc", req.ConfigsHash)

		w.Write([]byte(`{"server_ts":1700000100,"enabled":true,"configs":[{"key":"difficulty","value":"hard","start_ts":100,"end_ts":200}]}`))
	}))
	defer srv.Close()

	outcome, doc := newTestClient(srv.URL).PostInit(context.Background(), InitRequest{Platform: "linux", ConfigsHash: "abc"})

	require.Equal(t, OK, outcome)
	require.NotNil(t, doc)
	assert.Equal(t, int64(1700000100), doc.ServerTS)
	assert.True(t, doc.IsEnabled())
	require.Len(t, doc.Configs, 1)
	assert.Equal(t, "difficulty", doc.Configs[0].Key)
	assert.Equal(t, int64(200), doc.Configs[0].EndTS)
}

func TestPostInit_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Outcome
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, Unauthorized},
		{"bad request", http.StatusBadRequest, `[]`, BadRequest},
		{"server error", http.StatusInternalServerError, ``, UnknownCode},
		{"garbage body", http.StatusOK, `not json`, DecodeFailed},
		{"missing server_ts", http.StatusOK, `{"enabled":false}`, BadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			outcome, doc := newTestClient(srv.URL).PostInit(context.Background(), InitRequest{})
			assert.Equal(t, tt.want, outcome)
			assert.Nil(t, doc)
		})
	}
}

func TestPostEvents_GzipSignedCanonicalBatch(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/"+testKey+"/events", r.URL.Path)
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))

		raw, _ := io.ReadAll(r.Body)
		assert.Equal(t, Sign(testSecret, raw), r.Header.Get("Authorization"))

		zr, err := gzip.NewReader(strings.NewReader(string(raw)))
		if !assert.NoError(t, err) {
			return
		}
		plain, err := io.ReadAll(zr)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(plain, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	batch := []payload.Object{
		{"category": "design", "event_id": "a:b", "client_ts": int64(10)},
		{"category": "user", "client_ts": int64(11)},
	}
	outcome, _ := newTestClient(srv.URL).PostEvents(context.Background(), batch)

	assert.Equal(t, OK, outcome)
	require.Len(t, got, 2)
	assert.Equal(t, "design", got[0]["category"])
	assert.Equal(t, "user", got[1]["category"])
}

func TestPostEvents_BadRequestReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`[{"error":"bad"},{"error":"worse"}]`))
	}))
	defer srv.Close()

	outcome, body := newTestClient(srv.URL, WithoutCompression()).PostEvents(context.Background(),
		[]payload.Object{{"category": "design"}})

	assert.Equal(t, BadRequest, outcome)
	assert.JSONEq(t, `[{"error":"bad"},{"error":"worse"}]`, string(body))
}

func TestPostEvents_EncodeFailed(t *testing.T) {
	outcome, _ := newTestClient("http://127.0.0.1:1").PostEvents(context.Background(),
		[]payload.Object{{"bad": make(chan int)}})
	assert.Equal(t, EncodeFailed, outcome)
}

func TestPostEvents_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	outcome, _ := newTestClient(srv.URL, WithTimeout(20*time.Millisecond)).PostEvents(context.Background(),
		[]payload.Object{{"category": "design"}})
	assert.Equal(t, Timeout, outcome)
}

func TestPostEvents_NoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	outcome, body := newTestClient(url).PostEvents(context.Background(), []payload.Object{{"category": "design"}})
	assert.Equal(t, NoResponse, outcome)
	assert.Nil(t, body)
}

func TestSign_Deterministic(t *testing.T) {
	a := Sign("secret", []byte("body"))
	assert.Equal(t, a, Sign("secret", []byte("body")))
	assert.NotEqual(t, a, Sign("other", []byte("body")))
}
