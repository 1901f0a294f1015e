// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const testContent = "0123456789abcdefghijklmnopqrstuvwxyz"

func serveContent(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/data.bed.gz":
			http.ServeContent(w, req, "data.bed.gz", time.Now(), strings.NewReader(testContent))
		case "/norange":
			w.Write([]byte(testContent))
		case "/broken":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			http.NotFound(w, req)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTP_Fetch(t *testing.T) {
	server := serveContent(t)

	testCases := []struct {
		name string
		path string
		r    *Range
		want string
	}{
		{"whole resource", "/data.bed.gz", nil, testContent},
		{"range", "/data.bed.gz", &Range{2, 5}, "2345"},
		{"single byte", "/data.bed.gz", &Range{0, 0}, "0"},
		{"range past the end", "/data.bed.gz", &Range{30, 100000}, "uvwxyz"},
		{"server ignores range", "/norange", &Range{10, 12}, "abc"},
		{"server ignores range past the end", "/norange", &Range{34, 100}, "yz"},
	}
	f := &HTTP{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Fetch(context.Background(), server.URL+tc.path, tc.r)
			if err != nil {
				t.Fatalf("Fetch() returned error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Fetch(): got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHTTP_FetchErrors(t *testing.T) {
	server := serveContent(t)

	testCases := []struct {
		name   string
		url    string
		r      *Range
		status int
	}{
		{"not found", server.URL + "/missing", nil, http.StatusNotFound},
		{"server error", server.URL + "/broken", &Range{0, 1}, http.StatusInternalServerError},
		{"range not satisfiable", server.URL + "/data.bed.gz", &Range{1000, 2000}, http.StatusRequestedRangeNotSatisfiable},
		{"connection refused", "http://127.0.0.1:1/data", nil, 0},
	}
	f := &HTTP{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tc.url, tc.r)
			var network *NetworkError
			if !errors.As(err, &network) {
				t.Fatalf("Fetch(): got error %v, want NetworkError", err)
			}
			if got, want := network.StatusCode, tc.status; got != want {
				t.Errorf("Wrong status code: got %d, want %d", got, want)
			}
		})
	}
}

func TestHTTP_Header(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		got = req.Header.Get("Authorization")
	}))
	defer server.Close()

	f := &HTTP{Header: http.Header{"Authorization": []string{"Bearer xyz"}}}
	if _, err := f.Fetch(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Fetch() returned error: %v", err)
	}
	if want := "Bearer xyz"; got != want {
		t.Errorf("Wrong authorization header: got %q, want %q", got, want)
	}
}

func TestHTTP_Canceled(t *testing.T) {
	server := serveContent(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&HTTP{}).Fetch(ctx, server.URL+"/data.bed.gz", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch(): got error %v, want %v", err, context.Canceled)
	}
}

func TestFile_Fetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.bed.gz"), []byte(testContent), 0644); err != nil {
		t.Fatalf("Writing test file failed: %v", err)
	}

	testCases := []struct {
		name string
		r    *Range
		want string
	}{
		{"whole file", nil, testContent},
		{"range", &Range{2, 5}, "2345"},
		{"range past the end", &Range{30, 100000}, "uvwxyz"},
		{"range after the end", &Range{100, 200}, ""},
	}
	f := &File{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Fetch(context.Background(), "file://"+filepath.ToSlash(filepath.Join(dir, "data.bed.gz")), tc.r)
			if err != nil {
				t.Fatalf("Fetch() returned error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Fetch(): got %q, want %q", got, tc.want)
			}
		})
	}

	rooted := &File{Root: dir}
	if got, err := rooted.Fetch(context.Background(), "file:///data.bed.gz", &Range{0, 3}); err != nil || string(got) != "0123" {
		t.Errorf("Fetch() with root: got (%q, %v), want \"0123\"", got, err)
	}

	_, err := f.Fetch(context.Background(), "file://"+filepath.ToSlash(filepath.Join(dir, "missing")), nil)
	var network *NetworkError
	if !errors.As(err, &network) || network.StatusCode != http.StatusNotFound {
		t.Errorf("Fetch() of missing file: got error %v, want 404 NetworkError", err)
	}

	root := filepath.Join(dir, "root")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("Creating root failed: %v", err)
	}
	_, err = (&File{Root: root}).Fetch(context.Background(), "file:///../data.bed.gz", nil)
	if !errors.As(err, &network) || network.StatusCode != http.StatusNotFound {
		t.Errorf("Fetch() outside of root: got error %v, want 404 NetworkError", err)
	}
}

type fixedFetcher []byte

func (f fixedFetcher) Fetch(_ context.Context, _ string, r *Range) ([]byte, error) {
	return clip(f, r), nil
}

func TestMux(t *testing.T) {
	mux := Mux{
		"a": fixedFetcher("first"),
		"b": fixedFetcher("second"),
	}
	for url, want := range map[string]string{"a://x": "first", "B://y/z": "second"} {
		if got, err := mux.Fetch(context.Background(), url, nil); err != nil || string(got) != want {
			t.Errorf("Fetch(%q): got (%q, %v), want %q", url, got, err, want)
		}
	}

	_, err := mux.Fetch(context.Background(), "c://x", nil)
	var network *NetworkError
	if !errors.As(err, &network) {
		t.Errorf("Fetch() of unknown scheme: got error %v, want NetworkError", err)
	}
}

func TestLimit(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 1000)
	unlimited := &HTTP{}
	if f := Limit(unlimited, 0); f != Fetcher(unlimited) {
		t.Errorf("Limit(0) wrapped the fetcher")
	}

	f := Limit(fixedFetcher(data), 2000)
	start := time.Now()
	for i := 0; i < 3; i++ {
		got, err := f.Fetch(context.Background(), "x://y", nil)
		if err != nil || len(got) != len(data) {
			t.Fatalf("Fetch(): got (%d bytes, %v), want %d bytes", len(got), err, len(data))
		}
	}
	// The bucket starts full, the remaining 1000 bytes take about 0.6s.
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("Limited fetches took %v, want at least 300ms", elapsed)
	}
}
