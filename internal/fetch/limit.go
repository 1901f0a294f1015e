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

	"github.com/juju/ratelimit"
)

type limited struct {
	Fetcher
	bucket *ratelimit.Bucket
}

// Limit returns a Fetcher that throttles the bytes returned by f to about
// bytesPerSecond.  A limit of zero or less returns f unchanged.
func Limit(f Fetcher, bytesPerSecond int64) Fetcher {
	if bytesPerSecond <= 0 {
		return f
	}
	// There are overheads coming from HTTP/TCP/IP.
	return &limited{f, ratelimit.NewBucketWithRate(float64(bytesPerSecond)*0.85, bytesPerSecond)}
}

func (l *limited) Fetch(ctx context.Context, url string, r *Range) ([]byte, error) {
	data, err := l.Fetcher.Fetch(ctx, url, r)
	if err != nil {
		return nil, err
	}
	l.bucket.Wait(int64(len(data)))
	return data, nil
}
