package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "5c6bcb5402204249437fb5a7a80a4959"
	testSecret = "16813a12f718bc5c620f56944e1abc3ea13ccbac"
)

// collector is an in-process stand-in for the ingestion service.
type collector struct {
	srv *httptest.Server

	mu         sync.Mutex
	inits      int
	categories []string
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{}
	c.srv = httptest.NewServer(http.HandlerFunc(c.handle))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *collector) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/init"):
		c.mu.Lock()
		c.inits++
		c.mu.Unlock()
		fmt.Fprintf(w, `{"server_ts":%d,"enabled":true}`, time.Now().Unix())
	case strings.HasSuffix(r.URL.Path, "/events"):
		var body io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer zr.Close()
			body = zr
		}
		var events []map[string]any
		if err := json.NewDecoder(body).Decode(&events); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		for _, ev := range events {
			cat, _ := ev["category"].(string)
			c.categories = append(c.categories, cat)
		}
		c.mu.Unlock()
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (c *collector) seen() (int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inits, append([]string(nil), c.categories...)
}

// writeConfig writes a config pointing at url with its store under a
// fresh temp dir and returns the file path.
func writeConfig(t *testing.T, url string, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	lines := []string{
		"game_key: " + testKey,
		"game_secret: " + testSecret,
		"collector_url: " + url,
		"data_dir: " + filepath.Join(dir, "data"),
		"flush_interval: 1h",
		"http_timeout: 2s",
		"resource_currencies: [gems, gold]",
		"resource_item_types: [boost, lives]",
	}
	lines = append(lines, extra...)
	path := filepath.Join(dir, "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and the
// command error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}
