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
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// HTTP fetches http and https URLs using Range requests.
type HTTP struct {
	// Client is used for all requests (http.DefaultClient if nil).
	Client *http.Client
	// Header is added to every request.
	Header http.Header
}

// Fetch implements Fetcher.
func (h *HTTP) Fetch(ctx context.Context, url string, r *Range) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: errors.Wrap(err, "creating request")}
	}
	for key, values := range h.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if r != nil {
		req.Header.Set("Range", r.String())
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status, Err: errors.Wrap(err, "reading body")}
	}
	if resp.StatusCode != http.StatusPartialContent {
		// The server ignored the range and sent the whole resource.
		data = clip(data, r)
	}
	return data, nil
}
