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

// This binary serves the features of tabix indexed BED files over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/gops/agent"
	"github.com/google/uuid"
	"github.com/googlegenomics/featuresource/api"
	"github.com/googlegenomics/featuresource/internal/analytics"
	"github.com/googlegenomics/featuresource/internal/fetch"
	"github.com/googlegenomics/featuresource/internal/logging"
	"github.com/googlegenomics/featuresource/source"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

var logger = logging.GetLogger("featured")

func main() {
	app := &cli.App{
		Name:   "featured",
		Usage:  "serve the features of tabix indexed BED files over HTTP",
		Flags:  serverFlags(),
		Action: serve,
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Value:   80,
			Usage:   "HTTP service port",
			EnvVars: []string{"FEATURED_PORT"},
		},
		&cli.BoolFlag{
			Name:    "secure",
			Usage:   "serve in HTTPS-only mode and read GCS objects with the client's bearer token",
			EnvVars: []string{"FEATURED_SECURE"},
		},
		&cli.StringFlag{
			Name:    "https-cert",
			Usage:   "HTTPS certificate file",
			EnvVars: []string{"FEATURED_HTTPS_CERT"},
		},
		&cli.StringFlag{
			Name:    "https-key",
			Usage:   "HTTPS key file",
			EnvVars: []string{"FEATURED_HTTPS_KEY"},
		},
		&cli.StringSliceFlag{
			Name:    "hosts",
			Usage:   "if set, restricts reads to these hosts (buckets for gs:// URLs)",
			EnvVars: []string{"FEATURED_HOSTS"},
		},
		&cli.StringFlag{
			Name:    "gcs-credentials",
			Value:   "public",
			Usage:   "credentials for gs:// URLs outside of secure mode: public or default",
			EnvVars: []string{"FEATURED_GCS_CREDENTIALS"},
		},
		&cli.StringFlag{
			Name:    "root",
			Usage:   "serve file:// URLs from this directory (disabled if empty)",
			EnvVars: []string{"FEATURED_ROOT"},
		},
		&cli.StringFlag{
			Name:    "index-suffix",
			Value:   source.DefaultIndexSuffix,
			Usage:   "suffix appended to data URLs to locate their index",
			EnvVars: []string{"FEATURED_INDEX_SUFFIX"},
		},
		&cli.Uint64Flag{
			Name:    "block-size",
			Value:   source.DefaultBlockSizeLimit,
			Usage:   "soft limit on the size of merged chunks in bytes",
			EnvVars: []string{"FEATURED_BLOCK_SIZE"},
		},
		&cli.Int64Flag{
			Name:    "max-fetches",
			Value:   64,
			Usage:   "maximum number of concurrent fetches (0 for no limit)",
			EnvVars: []string{"FEATURED_MAX_FETCHES"},
		},
		&cli.Int64Flag{
			Name:    "bandwidth-limit",
			Usage:   "limit on fetched bytes per second (0 for no limit)",
			EnvVars: []string{"FEATURED_BANDWIDTH_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "log level (trace, debug, info, warn, error)",
			EnvVars: []string{"FEATURED_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "write a CPU profile to this directory",
		},
		&cli.BoolFlag{
			Name:  "gops",
			Usage: "start a gops diagnostics agent",
		},
		// If set, anonymous information about requests handled by the server is
		// sent to this Google Analytics property.  No user identifying
		// information is ever sent.
		&cli.StringFlag{
			Name:    "analytics-property",
			Usage:   "Google Analytics property ID for anonymous usage tracking",
			EnvVars: []string{"FEATURED_ANALYTICS_PROPERTY"},
		},
	}
}

func setLoggerLevel(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return errors.Wrap(err, "parsing log level")
	}
	logging.SetLevel(level)
	return nil
}

func serve(c *cli.Context) error {
	if err := setLoggerLevel(c); err != nil {
		return err
	}
	secure := c.Bool("secure")
	if secure && (c.String("https-cert") == "" || c.String("https-key") == "") {
		return cli.Exit("You must specify both --https-cert and --https-key in secure mode.", 1)
	}

	if dir := c.String("profile"); dir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.NoShutdownHook).Stop()
	}
	if c.Bool("gops") {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.WithError(err).Warn("Failed to start gops agent")
		} else {
			defer agent.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engines, err := newEngines(ctx, c)
	if err != nil {
		return err
	}
	server := api.NewServer(engines)
	if hosts := c.StringSlice("hosts"); len(hosts) > 0 {
		server.Whitelist(hosts)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if property := c.String("analytics-property"); property != "" {
		logger.Info("Enabling anonymous usage tracking")
		router.Use(analytics.Middleware(newTracker(analytics.NewClient(property, uuid.New().String()))))
	}
	server.Export(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Int("port")),
		Handler: router,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", httpServer.Addr)
		if secure {
			errc <- httpServer.ListenAndServeTLS(c.String("https-cert"), c.String("https-key"))
		} else {
			errc <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func engineOptions(c *cli.Context) source.Options {
	return source.Options{
		IndexSuffix:          c.String("index-suffix"),
		BlockSizeLimit:       c.Uint64("block-size"),
		MaxConcurrentFetches: c.Int64("max-fetches"),
		Logger:               logging.GetLogger("source"),
	}
}

// newEngines returns a single shared engine, or in secure mode one engine per
// bearer token.
func newEngines(ctx context.Context, c *cli.Context) (api.EngineFunc, error) {
	if c.Bool("secure") {
		return api.PerTokenEngines(func(authorization string) (fetch.Fetcher, error) {
			gcs, err := fetch.NewGCSFromBearerToken(ctx, authorization)
			if err != nil {
				return nil, err
			}
			return newFetcher(c, gcs), nil
		}, engineOptions(c)), nil
	}

	var (
		gcs *fetch.GCS
		err error
	)
	switch mode := c.String("gcs-credentials"); mode {
	case "public":
		gcs, err = fetch.NewPublicGCS(ctx)
	case "default":
		gcs, err = fetch.NewDefaultGCS(ctx)
	default:
		return nil, errors.Errorf("unknown GCS credentials %q", mode)
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return api.SharedEngine(source.NewEngine(newFetcher(c, gcs), engineOptions(c))), nil
}

func newFetcher(c *cli.Context, gcs *fetch.GCS) fetch.Fetcher {
	web := &fetch.HTTP{}
	mux := fetch.Mux{
		"http":  web,
		"https": web,
		"gs":    gcs,
	}
	if root := c.String("root"); root != "" {
		mux["file"] = &fetch.File{Root: root}
	}
	return fetch.Limit(mux, c.Int64("bandwidth-limit"))
}

// newTracker returns a function that uploads hits in the background.
func newTracker(client *analytics.Client) func([]analytics.Hit) {
	return func(hits []analytics.Hit) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := client.Send(ctx, hits); err != nil {
				logger.WithError(err).Warnf("Failed to send %d hits to analytics", len(hits))
			}
		}()
	}
}
