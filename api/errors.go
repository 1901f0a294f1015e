// Copyright 2017 Google Inc.
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

package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/googlegenomics/featuresource/internal/fetch"
	"github.com/googlegenomics/featuresource/source"
	"github.com/pkg/errors"
)

// apiError is used to capture errors that have been defined in the API.
type apiError struct {
	name  string
	code  int
	cause error
}

func (err *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %v", err.name, err.code, err.cause)
}

func (err *apiError) Unwrap() error {
	return err.cause
}

func newAPIError(name string, code int, context string, err error) error {
	return &apiError{name, code, errors.Wrap(err, context)}
}

func newInvalidAuthenticationError(context string, err error) error {
	return newAPIError("InvalidAuthentication", http.StatusUnauthorized, context, err)
}

func newInvalidInputError(context string, err error) error {
	return newAPIError("InvalidInput", http.StatusBadRequest, context, err)
}

func newInvalidRangeError(err error) error {
	return &apiError{"InvalidRange", http.StatusBadRequest, err}
}

func newPermissionDeniedError(context string, err error) error {
	return newAPIError("PermissionDenied", http.StatusForbidden, context, err)
}

func newNotFoundError(context string, err error) error {
	return newAPIError("NotFound", http.StatusNotFound, context, err)
}

func newUpstreamError(name, context string, err error) error {
	return newAPIError(name, http.StatusBadGateway, context, err)
}

// newQueryError classifies an error returned by the engine.
func newQueryError(err error) error {
	var network *source.NetworkError
	if errors.As(err, &network) {
		switch network.StatusCode {
		case http.StatusNotFound:
			return newNotFoundError("fetching data", err)
		case http.StatusUnauthorized:
			return newInvalidAuthenticationError("fetching data", err)
		case http.StatusForbidden:
			return newPermissionDeniedError("fetching data", err)
		}
		return newUpstreamError("UpstreamError", "fetching data", err)
	}

	var malformed *source.MalformedIndexError
	if errors.As(err, &malformed) {
		return newUpstreamError("MalformedIndex", "parsing index", err)
	}
	var corrupt *source.CorruptBlockError
	if errors.As(err, &corrupt) {
		return newUpstreamError("CorruptBlock", "decoding data", err)
	}
	return err
}

// newEngineError classifies an error returned while selecting an engine for
// a request.
func newEngineError(err error) error {
	if errors.Is(err, fetch.ErrMissingOrInvalidToken) {
		return newPermissionDeniedError("creating client", err)
	}
	return newQueryError(err)
}

// writeError writes a JSON object describing err to c.  Errors without a name
// defined by the API are reported as internal errors.
func writeError(c *gin.Context, err error) {
	var e *apiError
	if !errors.As(err, &e) {
		e = &apiError{"InternalError", http.StatusInternalServerError, err}
	}
	c.Error(err)
	c.JSON(e.code, gin.H{
		"error":   e.name,
		"message": fmt.Sprintf("%s: %v", http.StatusText(e.code), e.cause),
	})
}
