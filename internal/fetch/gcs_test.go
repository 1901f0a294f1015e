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
	"context"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

func newTestGCS(t *testing.T, transport http.RoundTripper) *GCS {
	t.Helper()
	client, err := storage.NewClient(context.Background(), option.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		t.Fatalf("Failed to create storage client: %v", err)
	}
	return NewGCS(client)
}

func TestGCS_Fetch(t *testing.T) {
	f := newTestGCS(t, fakeGCS{"data.bed.gz": testContent})

	testCases := []struct {
		name string
		r    *Range
		want string
	}{
		{"whole object", nil, testContent},
		{"range", &Range{2, 5}, "2345"},
		{"range past the end", &Range{30, 100000}, "uvwxyz"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Fetch(context.Background(), "gs://bucket/data.bed.gz", tc.r)
			if err != nil {
				t.Fatalf("Fetch() returned error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Fetch(): got %q, want %q", got, tc.want)
			}
		})
	}
}

// This test ensures that the undocumented error handling behaviour of the GCS
// storage client does not change.
func TestGCS_FetchErrors(t *testing.T) {
	testCases := []struct {
		name       string
		transport  http.RoundTripper
		statusCode int
	}{
		{"unauthorized", fixedStatus(http.StatusUnauthorized), http.StatusUnauthorized},
		{"forbidden", fixedStatus(http.StatusForbidden), http.StatusForbidden},
		{"not found", fixedStatus(http.StatusNotFound), http.StatusNotFound},
		{"missing object", fakeGCS{}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestGCS(t, tc.transport).Fetch(context.Background(), "gs://bucket/data.bed.gz", &Range{0, 10})
			var network *NetworkError
			if !errors.As(err, &network) {
				t.Fatalf("Fetch(): got error %v, want NetworkError", err)
			}
			if got, want := network.StatusCode, tc.statusCode; got != want {
				t.Errorf("Wrong status code: got %v, want %v", got, want)
			}
		})
	}
}

func TestParseGCSURL(t *testing.T) {
	bucket, object, err := parseGCSURL("gs://bucket/path/to/data.bed.gz")
	if err != nil {
		t.Fatalf("parseGCSURL() returned error: %v", err)
	}
	if bucket != "bucket" || object != "path/to/data.bed.gz" {
		t.Errorf("parseGCSURL(): got (%q, %q), want (\"bucket\", \"path/to/data.bed.gz\")", bucket, object)
	}

	for _, url := range []string{"gs://bucket", "gs://bucket/", "gs:///object", "http://bucket/object"} {
		if _, _, err := parseGCSURL(url); err == nil {
			t.Errorf("parseGCSURL(%q): expected error, not success", url)
		}
	}
}

func TestParseBearerToken(t *testing.T) {
	token, err := ParseBearerToken("Bearer abc")
	if err != nil {
		t.Fatalf("ParseBearerToken() returned error: %v", err)
	}
	if token.AccessToken != "abc" || token.TokenType != "Bearer" {
		t.Errorf("ParseBearerToken(): got %+v", token)
	}

	for _, value := range []string{"", "Bearer", "Basic abc", "Bearer a b", "Bearer "} {
		if _, err := ParseBearerToken(value); err != ErrMissingOrInvalidToken {
			t.Errorf("ParseBearerToken(%q): got error %v, want %v", value, err, ErrMissingOrInvalidToken)
		}
	}
}

type fixedStatus int

func (code fixedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		Status:     http.StatusText(int(code)),
		StatusCode: int(code),
		Header:     make(http.Header),
		Body:       http.NoBody,
	}, nil
}

// fakeGCS serves objects by name, ignoring the bucket.
type fakeGCS map[string]string

func (fake fakeGCS) RoundTrip(req *http.Request) (*http.Response, error) {
	name := path.Base(req.URL.Path)
	w := httptest.NewRecorder()

	content, ok := fake[name]
	if !ok {
		http.Error(w, "no such object", http.StatusNotFound)
		return w.Result(), nil
	}
	http.ServeContent(w, req, name, time.Now(), strings.NewReader(content))
	return w.Result(), nil
}
