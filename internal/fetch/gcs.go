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
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrMissingOrInvalidToken is returned for authorization values that do not
// hold an OAuth2 bearer token.
var ErrMissingOrInvalidToken = errors.New("missing or invalid bearer token")

// ObjectHandle is the part of a storage object used for reads.
type ObjectHandle interface {
	// NewRangeReader returns a reader that reads from a specified range.
	// Length of -1 means to capture everything until the end.
	NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// GCS reads gs://bucket/object URLs from Google Cloud Storage.
type GCS struct {
	// Object returns the handle for an object.
	Object func(bucket, object string) ObjectHandle
}

// NewGCS returns a GCS fetcher that reads objects through client.
func NewGCS(client *storage.Client) *GCS {
	return &GCS{
		Object: func(bucket, object string) ObjectHandle {
			return gcsObjectHandle{client.Bucket(bucket).Object(object)}
		},
	}
}

type gcsObjectHandle struct {
	*storage.ObjectHandle
}

func (h gcsObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	return h.ObjectHandle.NewRangeReader(ctx, offset, length)
}

// NewDefaultGCS returns a GCS fetcher that uses the application default
// credentials.
func NewDefaultGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "creating default storage client")
	}
	return NewGCS(client), nil
}

// NewPublicGCS returns a GCS fetcher that does not use any form of client
// authorization.  It can only be used to read publicly-readable objects.
func NewPublicGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx, option.WithHTTPClient(http.DefaultClient))
	if err != nil {
		return nil, errors.Wrap(err, "creating public storage client")
	}
	return NewGCS(client), nil
}

// NewGCSFromBearerToken returns a GCS fetcher that authenticates with the
// OAuth2 bearer token in authorization, the value of an HTTP Authorization
// header.
func NewGCSFromBearerToken(ctx context.Context, authorization string) (*GCS, error) {
	token, err := ParseBearerToken(authorization)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, errors.Wrap(err, "creating client with token source")
	}
	return NewGCS(client), nil
}

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(authorization string) (*oauth2.Token, error) {
	fields := strings.Split(authorization, " ")
	if len(fields) != 2 || fields[0] != "Bearer" || fields[1] == "" {
		return nil, ErrMissingOrInvalidToken
	}
	return &oauth2.Token{
		TokenType:   fields[0],
		AccessToken: fields[1],
	}, nil
}

// Fetch implements Fetcher.
func (g *GCS) Fetch(ctx context.Context, rawURL string, r *Range) ([]byte, error) {
	bucket, object, err := parseGCSURL(rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}

	offset, length := int64(0), int64(-1)
	if r != nil {
		offset, length = r.Start, r.Length()
	}
	reader, err := g.Object(bucket, object).NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, storageError(rawURL, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, storageError(rawURL, errors.Wrap(err, "reading object"))
	}
	return data, nil
}

func parseGCSURL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "gs" {
		return "", "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	object := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", errors.Errorf("missing bucket or object in %q", rawURL)
	}
	return u.Host, object, nil
}

func storageError(rawURL string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return &NetworkError{URL: rawURL, StatusCode: http.StatusNotFound, Status: "404 Not Found", Err: err}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &NetworkError{URL: rawURL, StatusCode: apiErr.Code, Status: http.StatusText(apiErr.Code), Err: err}
	}
	return &NetworkError{URL: rawURL, Err: err}
}
