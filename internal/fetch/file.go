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
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
)

// File reads file:// URLs from the local file system.
type File struct {
	// Root, if set, is prepended to every path.  Paths never resolve to
	// files outside of Root.
	Root string
}

// Fetch implements Fetcher.
func (f *File) Fetch(_ context.Context, rawURL string, r *Range) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	name := filepath.Join(f.Root, filepath.FromSlash(path.Clean("/"+u.Path)))

	file, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil, &NetworkError{URL: rawURL, StatusCode: http.StatusNotFound, Status: "404 Not Found", Err: err}
	} else if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	defer file.Close()

	if r == nil {
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, &NetworkError{URL: rawURL, Err: errors.Wrap(err, "reading file")}
		}
		return data, nil
	}

	data := make([]byte, r.Length())
	n, err := file.ReadAt(data, r.Start)
	if err != nil && err != io.EOF {
		return nil, &NetworkError{URL: rawURL, Err: errors.Wrapf(err, "reading %s", r)}
	}
	return data[:n], nil
}
