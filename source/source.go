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

// Package source provides random access to the features of tabix indexed,
// BGZF compressed BED files.
//
// An Engine owns one Source per data URL.  The index of a source is fetched
// and parsed once, on first use, and shared by every later query:
//
//	engine := source.NewEngine(&fetch.HTTP{}, source.Options{})
//	features, err := engine.CreateSource(url).GetData(ctx, []source.Interval{
//		{Chromosome: "chr1", Start: 150, End: 350},
//	})
package source

import (
	"context"
	"sync"

	"github.com/googlegenomics/featuresource/internal/bgzf"
	"github.com/googlegenomics/featuresource/internal/fetch"
	"github.com/googlegenomics/featuresource/internal/genomics"
	"github.com/googlegenomics/featuresource/internal/index"
	"github.com/googlegenomics/featuresource/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	// ChunkEndPadding is added to the block offset of a chunk's end to find
	// the last byte to fetch.  A BGZF block is never larger than this, so the
	// final block of the chunk is always captured whole.
	ChunkEndPadding = bgzf.MaximumBlockSize

	// DefaultIndexSuffix is appended to a data URL to locate its index.
	DefaultIndexSuffix = ".tbi"

	// DefaultBlockSizeLimit bounds the estimated size of merged chunks.
	DefaultBlockSizeLimit = 8 * 1024 * 1024
)

type (
	// Interval is a closed range of positions on a chromosome.
	Interval = genomics.Interval
	// Feature is a single record of a BED-like file.
	Feature = genomics.Feature

	// NetworkError reports a failed transfer.
	NetworkError = fetch.NetworkError
	// MalformedIndexError reports an index that could not be parsed.
	MalformedIndexError = index.MalformedError
	// CorruptBlockError reports a compressed block that could not be decoded.
	CorruptBlockError = bgzf.CorruptBlockError
)

// Options configures an Engine.  The zero value is usable.
type Options struct {
	// IndexSuffix is appended to data URLs to locate their index
	// (DefaultIndexSuffix if empty).  The index format is detected from its
	// contents, so ".csi" works as well.
	IndexSuffix string

	// BlockSizeLimit bounds the estimated size of the byte range fetched for
	// adjacent chunks that are merged (DefaultBlockSizeLimit if zero).
	BlockSizeLimit uint64

	// MaxConcurrentFetches limits the number of fetches in flight across all
	// sources of the engine.  Zero means no limit.
	MaxConcurrentFetches int64

	// Logger receives the engine's log entries (a logger named "source" if
	// nil).
	Logger logrus.FieldLogger
}

// Engine serves queries against any number of sources.  It is safe for
// concurrent use.
type Engine struct {
	fetcher fetch.Fetcher
	opts    Options
	fetches *semaphore.Weighted
	log     logrus.FieldLogger

	mu      sync.Mutex
	sources map[string]*Source
}

// NewEngine returns an Engine that reads data and indexes through fetcher.
func NewEngine(fetcher fetch.Fetcher, opts Options) *Engine {
	if opts.IndexSuffix == "" {
		opts.IndexSuffix = DefaultIndexSuffix
	}
	if opts.BlockSizeLimit == 0 {
		opts.BlockSizeLimit = DefaultBlockSizeLimit
	}
	e := &Engine{
		fetcher: fetcher,
		opts:    opts,
		log:     opts.Logger,
		sources: make(map[string]*Source),
	}
	if e.log == nil {
		e.log = logging.GetLogger("source")
	}
	if opts.MaxConcurrentFetches > 0 {
		e.fetches = semaphore.NewWeighted(opts.MaxConcurrentFetches)
	}
	return e
}

// CreateSource returns the source for url.  It does not block: the index is
// built on first use.  Every call with the same url returns the same Source.
func (e *Engine) CreateSource(url string) *Source {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sources[url]; ok {
		return s
	}
	s := &Source{
		url:    url,
		engine: e,
		ready:  make(chan struct{}),
	}
	e.sources[url] = s
	return s
}

func (e *Engine) fetch(ctx context.Context, url string, r *fetch.Range) ([]byte, error) {
	if e.fetches != nil {
		if err := e.fetches.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.fetches.Release(1)
	}
	return e.fetcher.Fetch(ctx, url, r)
}
