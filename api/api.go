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

// Package api implements an HTTP API for retrieving the features of tabix
// indexed BED files.
//
// Features are requested with
//
//	POST /features {"url": "gs://bucket/file.bed.gz", "regions": [{"chr": "chr1", "start": 0, "end": 1000}]}
//
// or, for a single region, GET /features?url=...&chr=chr1&start=0&end=1000.
// Both reply with {"features": [...]}.  GET /sources?url=... describes the
// index of a file.
package api

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/googlegenomics/featuresource/internal/analytics"
	"github.com/googlegenomics/featuresource/internal/logging"
	"github.com/googlegenomics/featuresource/source"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	featuresPath = "/features"
	sourcesPath  = "/sources"

	// RequestIDHeader carries the ID of each request.  A valid UUID sent by
	// the client is kept, otherwise a new one is generated.
	RequestIDHeader = "X-Request-Id"
)

var (
	errMissingURL        = errors.New("no url specified")
	errMissingScheme     = errors.New("url has no scheme")
	errMissingChromosome = errors.New("no chromosome specified")
)

// FeaturesRequest is the body of a POST request for features.
type FeaturesRequest struct {
	URL     string            `json:"url"`
	Regions []source.Interval `json:"regions"`
}

// FeaturesResponse lists the features that overlap the requested regions in
// region order.
type FeaturesResponse struct {
	Features []source.Feature `json:"features"`
}

// SourceResponse describes the index of a source.
type SourceResponse struct {
	URL         string   `json:"url"`
	State       string   `json:"state"`
	MinShift    int32    `json:"minShift"`
	Depth       int32    `json:"depth"`
	Chromosomes []string `json:"chromosomes"`
}

// Server provides the feature API.  Must be created with NewServer.
type Server struct {
	engines   EngineFunc
	whitelist map[string]bool
	log       logrus.FieldLogger
}

// NewServer returns a new Server that calls engines on each request to
// determine which engine serves it.
func NewServer(engines EngineFunc) *Server {
	return &Server{
		engines:   engines,
		whitelist: make(map[string]bool),
		log:       logging.GetLogger("api"),
	}
}

// Whitelist adds hosts (GCS buckets for gs:// URLs) to the set of hosts
// which the server is allowed to read from.  If Whitelist is never called for
// a given Server then reads from any host are allowed.
func (server *Server) Whitelist(hosts []string) {
	for _, host := range hosts {
		server.whitelist[host] = true
	}
}

// Export registers the API's handlers with router.
func (server *Server) Export(router gin.IRouter) {
	group := router.Group("/", requestLogger(server.log), forwardOrigin)
	group.POST(featuresPath, server.postFeatures)
	group.GET(featuresPath, server.getFeatures)
	group.OPTIONS(featuresPath, preflight)
	group.GET(sourcesPath, server.getSource)
}

func (server *Server) postFeatures(c *gin.Context) {
	var req FeaturesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, newInvalidInputError("parsing request", err))
		return
	}
	server.serveFeatures(c, &req)
}

func (server *Server) getFeatures(c *gin.Context) {
	region, err := parseRegion(c)
	if err != nil {
		writeError(c, err)
		return
	}
	server.serveFeatures(c, &FeaturesRequest{
		URL:     c.Query("url"),
		Regions: []source.Interval{region},
	})
}

func (server *Server) serveFeatures(c *gin.Context, req *FeaturesRequest) {
	for _, region := range req.Regions {
		if err := checkRegion(region); err != nil {
			writeError(c, err)
			return
		}
	}
	src, err := server.source(c, req.URL)
	if err != nil {
		writeError(c, err)
		return
	}

	features, err := src.GetData(c.Request.Context(), req.Regions)
	if err != nil {
		writeError(c, newQueryError(err))
		return
	}

	count := int64(len(features))
	analytics.TrackerFromContext(c.Request.Context())(
		analytics.Event(analytics.Category, "features", src.URL(), &count))
	c.JSON(http.StatusOK, FeaturesResponse{Features: features})
}

func (server *Server) getSource(c *gin.Context) {
	src, err := server.source(c, c.Query("url"))
	if err != nil {
		writeError(c, err)
		return
	}

	idx, err := src.Index(c.Request.Context())
	if err != nil {
		writeError(c, newQueryError(err))
		return
	}
	c.JSON(http.StatusOK, SourceResponse{
		URL:         src.URL(),
		State:       src.State().String(),
		MinShift:    idx.MinShift,
		Depth:       idx.Depth,
		Chromosomes: append([]string{}, idx.Names...),
	})
}

// source validates rawURL and returns its source from the engine selected
// for the request.
func (server *Server) source(c *gin.Context, rawURL string) (*source.Source, error) {
	if rawURL == "" {
		return nil, newInvalidInputError("checking url", errMissingURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, newInvalidInputError("parsing url", err)
	}
	if u.Scheme == "" {
		return nil, newInvalidInputError("parsing url", errMissingScheme)
	}
	if err := server.checkWhitelist(u.Host); err != nil {
		return nil, newPermissionDeniedError("checking whitelist", err)
	}

	engine, err := server.engines(c.Request)
	if err != nil {
		return nil, newEngineError(err)
	}
	return engine.CreateSource(rawURL), nil
}

func (server *Server) checkWhitelist(host string) error {
	if len(server.whitelist) == 0 || server.whitelist[host] {
		return nil
	}
	return errors.Errorf("host %q is not whitelisted", host)
}

// parseRegion reads a single region from the query parameters.  A missing
// start or end leaves that side of the region open.
func parseRegion(c *gin.Context) (source.Interval, error) {
	region := source.Interval{
		Chromosome: c.Query("chr"),
		End:        math.MaxInt64,
	}
	if start := c.Query("start"); start != "" {
		v, err := strconv.ParseInt(start, 10, 64)
		if err != nil {
			return region, newInvalidInputError("parsing start", err)
		}
		region.Start = v
	}
	if end := c.Query("end"); end != "" {
		v, err := strconv.ParseInt(end, 10, 64)
		if err != nil {
			return region, newInvalidInputError("parsing end", err)
		}
		region.End = v
	}
	return region, nil
}

func checkRegion(region source.Interval) error {
	if region.Chromosome == "" {
		return newInvalidInputError("checking region", errMissingChromosome)
	}
	if region.Start < 0 {
		return newInvalidRangeError(errors.Errorf("negative start in %s", region))
	}
	if region.Start > region.End {
		return newInvalidRangeError(errors.Errorf("start after end in %s", region))
	}
	return nil
}

// requestLogger tags the request with an ID and logs its outcome.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(RequestIDHeader))
		if err != nil {
			id = uuid.New()
		}
		c.Header(RequestIDHeader, id.String())

		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request": id,
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		})
		if err := c.Errors.Last(); err != nil {
			entry.WithError(err.Err).Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	}
}

func forwardOrigin(c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Expose-Headers", RequestIDHeader)
	}
	c.Next()
}

func preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, POST")
	c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
	c.Status(http.StatusNoContent)
}
