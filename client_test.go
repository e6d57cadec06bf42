package transfer

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Run("zero config gets defaults", func(t *testing.T) {
		client, err := New(Config{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer client.Close()
		if client.cfg.Connections != DefaultConnections {
			t.Errorf("Connections = %d, want %d", client.cfg.Connections, DefaultConnections)
		}
		if client.cfg.ChunkThreshold != DefaultChunkThreshold {
			t.Errorf("ChunkThreshold = %d, want %d", client.cfg.ChunkThreshold, DefaultChunkThreshold)
		}
	})

	t.Run("invalid retry policy rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Retry.BaseDelay = -time.Second
		if _, err := New(cfg); err == nil {
			t.Error("New() = nil, want error for invalid policy")
		}
	})
}

func TestGetJSON(t *testing.T) {
	t.Run("decodes into the target", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept = %q, want application/json", r.Header.Get("Accept"))
			}
			w.Write([]byte(`{"name":"sd-xl-base","downloads":412}`))
		}))
		defer srv.Close()

		client := newTestClient(t, testConfig())
		var out struct {
			Name      string `json:"name"`
			Downloads int    `json:"downloads"`
		}
		if err := client.GetJSON(t.Context(), srv.URL, nil, &out); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
		if out.Name != "sd-xl-base" || out.Downloads != 412 {
			t.Errorf("decoded = %+v", out)
		}
	})

	t.Run("query params are appended", func(t *testing.T) {
		var gotQuery url.Values
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		client := newTestClient(t, testConfig())
		params := url.Values{"limit": {"20"}, "query": {"lora"}}
		var out map[string]any
		if err := client.GetJSON(t.Context(), srv.URL+"/api/v1/models", params, &out); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
		if gotQuery.Get("limit") != "20" || gotQuery.Get("query") != "lora" {
			t.Errorf("query = %v", gotQuery)
		}
	})

	t.Run("malformed body is a ParseError and not retried", func(t *testing.T) {
		var hits int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte(`<html>not json</html>`))
		}))
		defer srv.Close()

		client := newTestClient(t, testConfig())
		var out map[string]any
		err := client.GetJSON(t.Context(), srv.URL, nil, &out)
		if KindOf(err) != KindParseError {
			t.Errorf("kind = %v, want parse-error", KindOf(err))
		}
		if hits != 1 {
			t.Errorf("server hits = %d, want 1", hits)
		}
	})

	t.Run("404 surfaces as ClientError", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		client := newTestClient(t, testConfig())
		var out any
		err := client.GetJSON(t.Context(), srv.URL, nil, &out)
		if KindOf(err) != KindClientError {
			t.Errorf("kind = %v, want client-error", KindOf(err))
		}
	})
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := newTestClient(t, testConfig())
	var out struct {
		OK bool `json:"ok"`
	}
	if err := client.PostJSON(t.Context(), srv.URL, map[string]string{"vote": "up"}, &out); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
}

func TestClientAuthToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.AuthToken = "tok-123"
	client := newTestClient(t, cfg)
	var out any
	if err := client.GetJSON(t.Context(), srv.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
}

func TestDownloadFileStrategy(t *testing.T) {
	t.Run("small file takes the single-stream path", func(t *testing.T) {
		data := testPattern(256 * 1024)
		var rangeGETs int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && r.Header.Get("Range") != "" {
				rangeGETs++
			}
			http.ServeContent(w, r, "small.bin", time.Time{}, bytes.NewReader(data))
		}))
		defer srv.Close()

		cfg := testConfig()
		cfg.ChunkThreshold = 1 << 20
		client := newTestClient(t, cfg)
		dest := filepath.Join(t.TempDir(), "small.bin")
		if err := client.DownloadFile(t.Context(), srv.URL, dest, nil); err != nil {
			t.Fatalf("DownloadFile() error = %v", err)
		}
		if rangeGETs != 0 {
			t.Errorf("rangeGETs = %d, want 0 below the chunk threshold", rangeGETs)
		}
	})

	t.Run("large file takes the chunked path", func(t *testing.T) {
		data := testPattern(4 << 20)
		var rangeGETs int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet && r.Header.Get("Range") != "" {
				rangeGETs++
			}
			http.ServeContent(w, r, "large.bin", time.Time{}, bytes.NewReader(data))
		}))
		defer srv.Close()

		cfg := testConfig()
		cfg.Connections = 4
		cfg.ChunkThreshold = 1 << 20
		client := newTestClient(t, cfg)
		dest := filepath.Join(t.TempDir(), "large.bin")
		if err := client.DownloadFile(t.Context(), srv.URL, dest, nil); err != nil {
			t.Fatalf("DownloadFile() error = %v", err)
		}
		if rangeGETs != 4 {
			t.Errorf("rangeGETs = %d, want 4", rangeGETs)
		}
		got, _ := os.ReadFile(dest)
		if !bytes.Equal(got, data) {
			t.Fatal("downloaded content differs from source")
		}
	})
}

func TestDownloadBatch(t *testing.T) {
	data := map[string][]byte{
		"/a.bin": testPattern(8 * 1024),
		"/b.bin": testPattern(16 * 1024),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := data[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	entries := []BatchEntry{
		{URL: srv.URL + "/a.bin", OutputPath: filepath.Join(dir, "a.bin")},
		{URL: srv.URL + "/b.bin", OutputPath: filepath.Join(dir, "b.bin")},
	}
	client := newTestClient(t, testConfig())
	if err := client.DownloadBatch(t.Context(), entries, 2, nil); err != nil {
		t.Fatalf("DownloadBatch() error = %v", err)
	}
	for _, entry := range entries {
		got, err := os.ReadFile(entry.OutputPath)
		if err != nil {
			t.Fatalf("reading %s: %v", entry.OutputPath, err)
		}
		if !bytes.Equal(got, data["/"+filepath.Base(entry.OutputPath)]) {
			t.Errorf("%s differs from source", entry.OutputPath)
		}
	}

	t.Run("failed entries are reported per URL", func(t *testing.T) {
		bad := []BatchEntry{{URL: srv.URL + "/missing.bin", OutputPath: filepath.Join(dir, "missing.bin")}}
		if err := client.DownloadBatch(t.Context(), bad, 1, nil); err == nil {
			t.Error("DownloadBatch() = nil, want error")
		}
	})
}

func TestCleanParts(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "model.bin")
	for i := range 3 {
		if err := os.WriteFile(partPath(dest, i), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	keeper := filepath.Join(dir, "other.bin")
	os.WriteFile(keeper, []byte("y"), 0644)

	if err := CleanParts(dest); err != nil {
		t.Fatalf("CleanParts() error = %v", err)
	}
	if parts, _ := filepath.Glob(dest + ".part*"); len(parts) != 0 {
		t.Errorf("part files remain: %v", parts)
	}
	if _, err := os.Stat(keeper); err != nil {
		t.Error("CleanParts removed an unrelated file")
	}
}
