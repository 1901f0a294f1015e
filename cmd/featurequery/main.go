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

// This binary queries the features of a tabix indexed BED file directly,
// without a server, and supports Google authentication.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googlegenomics/featuresource/internal/fetch"
	"github.com/googlegenomics/featuresource/internal/logging"
	"github.com/googlegenomics/featuresource/source"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const scope = "https://www.googleapis.com/auth/devstorage.read_only"

var logger = logging.GetLogger("featurequery")

func main() {
	app := &cli.App{
		Name:      "featurequery",
		Usage:     "print the features of a tabix indexed BED file that overlap regions",
		ArgsUsage: "URL REGION...",
		Description: "URL may be an http(s)://, gs:// or file:// URL.  Each REGION is\n" +
			"CHR, CHR:START or CHR:START-END with closed, zero-based coordinates.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "index-suffix",
				Value: source.DefaultIndexSuffix,
				Usage: "suffix appended to URL to locate its index",
			},
			&cli.Int64Flag{
				Name:  "max-fetches",
				Value: 16,
				Usage: "maximum number of concurrent fetches (0 for no limit)",
			},
			&cli.BoolFlag{
				Name:    "google-auth",
				Aliases: []string{"g"},
				Usage:   "authenticate with Google application default credentials",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "OAuth2 access token sent with every request",
				EnvVars: []string{"FEATUREQUERY_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print features as JSON",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level (trace, debug, info, warn, error)",
			},
		},
		Action: query,
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func query(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return errors.Wrap(err, "parsing log level")
	}
	logging.SetLevel(level)

	if c.Args().Len() < 2 {
		return cli.Exit("A URL and at least one region are required.", 2)
	}
	url := c.Args().First()
	var regions []source.Interval
	for _, arg := range c.Args().Tail() {
		region, err := parseRegion(arg)
		if err != nil {
			return err
		}
		regions = append(regions, region)
	}

	ctx := context.Background()
	client, err := newHTTPClient(ctx, c)
	if err != nil {
		return err
	}
	gcs, err := storage.NewClient(ctx, option.WithHTTPClient(client))
	if err != nil {
		return errors.Wrap(err, "creating storage client")
	}
	defer gcs.Close()

	counter := &countingFetcher{Fetcher: fetch.Mux{
		"http":  &fetch.HTTP{Client: client},
		"https": &fetch.HTTP{Client: client},
		"gs":    fetch.NewGCS(gcs),
		"file":  &fetch.File{},
	}}
	engine := source.NewEngine(counter, source.Options{
		IndexSuffix:          c.String("index-suffix"),
		MaxConcurrentFetches: c.Int64("max-fetches"),
	})

	start := time.Now()
	features, err := engine.CreateSource(url).GetData(ctx, regions)
	if err != nil {
		return errors.Wrapf(err, "querying %s", url)
	}
	logger.Infof("Found %d features in %v (%s in %d fetches)", len(features),
		time.Since(start).Round(time.Millisecond), humanSize(atomic.LoadInt64(&counter.bytes)), atomic.LoadInt64(&counter.fetches))

	switch {
	case c.Bool("json"):
		return writeJSON(os.Stdout, features)
	case isatty.IsTerminal(os.Stdout.Fd()):
		return writeTable(os.Stdout, features)
	default:
		return writeBED(os.Stdout, features)
	}
}

// parseRegion parses CHR, CHR:START or CHR:START-END.  Thousands separators
// are allowed in positions.
func parseRegion(s string) (source.Interval, error) {
	region := source.Interval{End: math.MaxInt64}
	name, span, hasSpan := strings.Cut(s, ":")
	if name == "" {
		return region, errors.Errorf("region %q has no chromosome", s)
	}
	region.Chromosome = name
	if !hasSpan {
		return region, nil
	}

	first, last, hasEnd := strings.Cut(span, "-")
	start, err := parsePosition(first)
	if err != nil {
		return region, errors.Wrapf(err, "parsing start of region %q", s)
	}
	region.Start = start
	if hasEnd {
		end, err := parsePosition(last)
		if err != nil {
			return region, errors.Wrapf(err, "parsing end of region %q", s)
		}
		region.End = end
	}
	if region.Start > region.End {
		return region, errors.Errorf("region %q starts after it ends", s)
	}
	return region, nil
}

func parsePosition(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
}

// newHTTPClient returns the client used for http(s):// and gs:// URLs.
func newHTTPClient(ctx context.Context, c *cli.Context) (*http.Client, error) {
	base := http.DefaultClient

	// For compatibility with other tools, read the standard cURL certificate
	// authority override from the environment.
	if bundle := os.Getenv("CURL_CA_BUNDLE"); bundle != "" {
		pem, err := os.ReadFile(bundle)
		if err != nil {
			return nil, errors.Wrapf(err, "reading CA override file %q", bundle)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, errors.Wrap(err, "initializing system certificate pool")
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates found in bundle %q", bundle)
		}
		base = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{RootCAs: pool},
			},
		}
		logger.Infof("Using CA override bundle from %q", bundle)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	if token := c.String("token"); token != "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		})), nil
	}
	if c.Bool("google-auth") {
		client, err := google.DefaultClient(ctx, scope)
		if err != nil {
			return nil, errors.Wrap(err, "creating Google client")
		}
		return client, nil
	}
	return base, nil
}

// countingFetcher records the number of fetches and the bytes they returned.
type countingFetcher struct {
	fetch.Fetcher
	fetches, bytes int64
}

func (f *countingFetcher) Fetch(ctx context.Context, url string, r *fetch.Range) ([]byte, error) {
	data, err := f.Fetcher.Fetch(ctx, url, r)
	atomic.AddInt64(&f.fetches, 1)
	atomic.AddInt64(&f.bytes, int64(len(data)))
	return data, err
}

func humanSize(n int64) string {
	kb := n / 1024
	mb := kb / 1024
	gb := mb / 1024
	if gb > 1 {
		return fmt.Sprintf("%d GB", gb)
	}
	if mb > 1 {
		return fmt.Sprintf("%d MB", mb)
	}
	if kb > 1 {
		return fmt.Sprintf("%d KB", kb)
	}
	return fmt.Sprintf("%d bytes", n)
}

func writeJSON(w io.Writer, features []source.Feature) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(features)
}

func writeTable(w io.Writer, features []source.Feature) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "CHR\tSTART\tEND\tDETAILS")
	for _, f := range features {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", f.Chromosome, f.Start, f.End, f.Details)
	}
	return tw.Flush()
}

func writeBED(w io.Writer, features []source.Feature) error {
	for _, f := range features {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", f.Chromosome, f.Start, f.End, f.Details); err != nil {
			return err
		}
	}
	return nil
}
