/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		body := fmt.Sprintf("spyfall v%s: create a room with POST %s/spyfall/api/rooms", releaseVersion, cfg.prefix)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := io.WriteString(w, newPage("Spyfall", body))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			elapsed(startTime),
		)
	}
}

// serveHealthCheck answers 503 while redis or nats is unreachable.
func serveHealthCheck(cfg *Config, g *game, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		body := "Ok\n"
		if err := g.healthy(ctx); err != nil {
			cfg.log.Warn().Err(err).Msg("SERVE: health check failed")

			w.WriteHeader(http.StatusServiceUnavailable)
			body = "Unavailable\n"
		}

		if _, err := io.WriteString(w, body); err != nil {
			errs <- err
		}
	}
}

// Crawlers that train on page content are turned away entirely. Everyone
// else is kept out of the per-room pages.
var blockedAgents = []string{
	"Amazonbot",
	"Applebot-Extended",
	"Bytespider",
	"CCBot",
	"ClaudeBot",
	"Google-Extended",
	"GPTBot",
	"meta-externalagent",
}

func robotsTxt(prefix string) string {
	var b strings.Builder

	for _, agent := range blockedAgents {
		fmt.Fprintf(&b, "User-agent: %s\nDisallow: /\n\n", agent)
	}

	fmt.Fprintf(&b, "User-agent: *\nDisallow: %s/spyfall/\n", prefix)

	return b.String()
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	data := robotsTxt(cfg.prefix)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		if _, err := io.WriteString(w, data); err != nil {
			errs <- err
		}
	}
}

func registerHome(cfg *Config, path string, mux *httprouter.Router, errs chan<- error) {
	mux.GET(path, serveHomePage(cfg, errs))
}
