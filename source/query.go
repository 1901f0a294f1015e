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

package source

import (
	"context"
	"sync"
	"time"

	"github.com/googlegenomics/featuresource/internal/bed"
	"github.com/googlegenomics/featuresource/internal/bgzf"
	"github.com/googlegenomics/featuresource/internal/csi"
	"github.com/googlegenomics/featuresource/internal/fetch"
	"github.com/googlegenomics/featuresource/internal/index"
	"github.com/googlegenomics/featuresource/internal/tabix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source is a single indexed data file.  It is safe for concurrent use.
type Source struct {
	url    string
	engine *Engine

	mu    sync.Mutex
	state State
	index *index.Index
	err   error
	ready chan struct{} // Closed when the build finishes.
}

// URL returns the data URL of the source.
func (s *Source) URL() string {
	return s.url
}

// State returns the current state of the source's index.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Warm starts building the index, if that has not happened yet, and waits
// for the result.  Waiting stops early if ctx is done; the build itself
// continues.
func (s *Source) Warm(ctx context.Context) error {
	_, err := s.Index(ctx)
	return err
}

// Index returns the parsed index, building it on first use.  Concurrent
// callers share a single build.  A failed build is never retried: its error
// is returned to every caller.
func (s *Source) Index(ctx context.Context) (*index.Index, error) {
	s.mu.Lock()
	if s.state == Uninitialized {
		s.state = IndexBuilding
		go s.build()
	}
	s.mu.Unlock()

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.err
}

// build uses its own context: it outlives any caller that waits for it.
func (s *Source) build() {
	log := s.engine.log.WithField("url", s.url)
	start := time.Now()
	idx, err := s.engine.loadIndex(context.Background(), s.url+s.engine.opts.IndexSuffix)
	defer close(s.ready)

	s.mu.Lock()
	if err != nil {
		s.state, s.err = IndexFailed, err
	} else {
		s.state, s.index = IndexReady, idx
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("Index build failed")
		return
	}
	if len(idx.Names) == 0 && len(idx.References) > 0 {
		log.WithField("references", len(idx.References)).Warn("Index has no sequence names, queries will return no features")
	}
	log.WithFields(logrus.Fields{
		"references": len(idx.References),
		"elapsed":    time.Since(start),
	}).Info("Index ready")
}

func (e *Engine) loadIndex(ctx context.Context, url string) (*index.Index, error) {
	raw, err := e.fetch(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetching index")
	}
	magic, err := bgzf.Peek(raw, len(tabix.Magic))
	if err != nil {
		return nil, &index.MalformedError{Offset: 0, Err: errors.Wrap(err, "decompressing index")}
	}

	switch string(magic) {
	case tabix.Magic:
		return tabix.Parse(raw)
	case csi.Magic:
		return csi.Parse(raw)
	}
	return nil, &index.MalformedError{Offset: 0, Err: errors.Errorf("unknown index format %q", magic)}
}

// GetData returns the features that overlap any of intervals.  Features are
// returned in interval order and, within an interval, in file order; a
// feature overlapping several intervals is returned once per interval.
// Chromosomes missing from the index contribute nothing.  The first failure
// of any fetch fails the whole call.
func (s *Source) GetData(ctx context.Context, intervals []Interval) ([]Feature, error) {
	if len(intervals) == 0 {
		return []Feature{}, nil
	}
	idx, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]Feature, len(intervals))
	var g errgroup.Group
	for i, interval := range intervals {
		i, interval := i, interval
		g.Go(func() error {
			features, err := s.query(ctx, idx, interval)
			results[i] = features
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return concat(results), nil
}

func (s *Source) query(ctx context.Context, idx *index.Index, interval Interval) ([]Feature, error) {
	id, ok := idx.ReferenceID(interval.Chromosome)
	if !ok {
		return nil, nil
	}
	chunks := idx.Chunks(id, interval.Start, interval.End, s.engine.opts.BlockSizeLimit)
	s.engine.log.WithFields(logrus.Fields{
		"url":      s.url,
		"interval": interval,
		"chunks":   len(chunks),
	}).Debug("Planned query")

	results := make([][]Feature, len(chunks))
	var g errgroup.Group
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			features, err := s.readChunk(ctx, chunk, interval)
			results[i] = features
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "querying %s", interval)
	}
	return concat(results), nil
}

func (s *Source) readChunk(ctx context.Context, chunk *bgzf.Chunk, interval Interval) ([]Feature, error) {
	r := &fetch.Range{
		Start: int64(chunk.Start.BlockOffset()),
		End:   int64(chunk.End.BlockOffset()) + ChunkEndPadding,
	}
	raw, err := s.engine.fetch(ctx, s.url, r)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching chunk %s", chunk)
	}
	text, err := bgzf.DecodeChunk(raw, *chunk)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding chunk %s", chunk)
	}
	return bed.Parse(text, interval.Chromosome, interval.Start, interval.End), nil
}

func concat(results [][]Feature) []Feature {
	features := []Feature{}
	for _, result := range results {
		features = append(features, result...)
	}
	return features
}
