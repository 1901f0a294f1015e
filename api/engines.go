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

package api

import (
	"net/http"
	"sync"

	"github.com/googlegenomics/featuresource/internal/fetch"
	"github.com/googlegenomics/featuresource/source"
)

// maxCachedEngines bounds the number of per-token engines kept alive.
const maxCachedEngines = 256

// EngineFunc returns the engine that serves req.
type EngineFunc func(req *http.Request) (*source.Engine, error)

// SharedEngine serves every request with engine.
func SharedEngine(engine *source.Engine) EngineFunc {
	return func(*http.Request) (*source.Engine, error) {
		return engine, nil
	}
}

// NewFetcherFunc returns a fetcher that reads data on behalf of the holder of
// the given Authorization header value.
type NewFetcherFunc func(authorization string) (fetch.Fetcher, error)

// PerTokenEngines serves each distinct Authorization header with its own
// engine, so indexes read with one caller's credentials are never shared
// with another caller.  Engines are created with newFetcher and opts.  When
// more than a fixed number of tokens are active the cache starts over.
func PerTokenEngines(newFetcher NewFetcherFunc, opts source.Options) EngineFunc {
	var (
		mu      sync.Mutex
		engines = make(map[string]*source.Engine)
	)
	return func(req *http.Request) (*source.Engine, error) {
		authorization := req.Header.Get("Authorization")
		if _, err := fetch.ParseBearerToken(authorization); err != nil {
			return nil, err
		}

		mu.Lock()
		defer mu.Unlock()
		if engine, ok := engines[authorization]; ok {
			return engine, nil
		}
		fetcher, err := newFetcher(authorization)
		if err != nil {
			return nil, err
		}
		if len(engines) >= maxCachedEngines {
			engines = make(map[string]*source.Engine)
		}
		engine := source.NewEngine(fetcher, opts)
		engines[authorization] = engine
		return engine, nil
	}
}
