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

// Package fetch provides byte range reads of remote and local resources.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Range is an inclusive byte range.
type Range struct {
	Start, End int64
}

// Length returns the number of bytes covered by r.
func (r *Range) Length() int64 {
	return r.End - r.Start + 1
}

func (r *Range) String() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Fetcher reads resources.
type Fetcher interface {
	// Fetch returns the bytes of url covered by r, or the whole resource if r
	// is nil.  A range that extends past the end of the resource returns the
	// bytes up to the end.  Fetch never retries.
	Fetch(ctx context.Context, url string, r *Range) ([]byte, error)
}

// NetworkError reports a failed transfer.  StatusCode is zero when the
// request failed before a response was received.
type NetworkError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Status, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetching %s: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Mux dispatches requests to a Fetcher by URL scheme.
type Mux map[string]Fetcher

// Fetch implements Fetcher.
func (m Mux) Fetch(ctx context.Context, rawURL string, r *Range) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	f, ok := m[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &NetworkError{URL: rawURL, Err: errors.Errorf("unsupported scheme %q", u.Scheme)}
	}
	return f.Fetch(ctx, rawURL, r)
}

// clip returns the part of data covered by r.
func clip(data []byte, r *Range) []byte {
	if r == nil {
		return data
	}
	if r.Start >= int64(len(data)) {
		return nil
	}
	if r.End+1 < int64(len(data)) {
		return data[r.Start : r.End+1]
	}
	return data[r.Start:]
}
