// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stream serves the live frames and the control API over HTTP.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"image/jpeg"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/maruel/serve-dir/loghttp"
	"golang.org/x/net/websocket"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/mailbox"
	"github.com/dboth/thermalplant/snapshot"
)

// Controller is the part of the acquisition loop the server drives.
// *acquire.Loop implements it.
type Controller interface {
	Frames() *mailbox.Mailbox[*acquire.Frame]
	Mode() acquire.Mode
	RequestMode(m acquire.Mode)
	RequestSnapshot() bool
	Stats() acquire.Stats
}

// Labeler receives the label of the next snapshot. *snapshot.Saver implements
// it.
type Labeler interface {
	SetLabel(label string)
}

// Server serves the frames published by a Controller.
type Server struct {
	Loop Controller
	// Labeler, if set, receives the snapshot labels.
	Labeler Labeler
	// Catalog, if set, is listed by /api/snapshots.
	Catalog *snapshot.Catalog
	// Quality is the JPEG quality. Defaults to 80.
	Quality int

	clients atomic.Int64
	sent    atomic.Uint64
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/", s.root)
	api.HandleFunc("/still.jpg", s.still)
	api.HandleFunc("/api/mode", s.apiMode)
	api.HandleFunc("/api/snapshot", s.apiSnapshot)
	api.HandleFunc("/api/snapshots", s.apiSnapshots)
	api.HandleFunc("/api/stats", s.apiStats)

	mux := http.NewServeMux()
	mux.Handle("/", &loghttp.Handler{Handler: api})
	// Long lived responses need Flush and Hijack.
	mux.Handle("/stream.mjpg", loggingHandler{http.HandlerFunc(s.mjpeg)})
	mux.Handle("/ws", loggingHandler{websocket.Handler(s.ws)})
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("stream: listening on %s", ln.Addr())
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(c); err != nil {
			srv.Close()
		}
	}()
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

var rootTmpl = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>thermalplant</title>
	<style>
		body { background: #111; color: #ddd; font-family: sans-serif; }
		img.live { width: 640px; height: auto; image-rendering: pixelated; }
	</style>
	<script>
	function post(url) { fetch(url, {method: "POST"}); }
	function snapshot() {
		post("/api/snapshot?label=" + encodeURIComponent(document.getElementById("label").value));
	}
	</script>
</head>
<body>
	<img class="live" src="/stream.mjpg"><br>
	{{range .Modes}}<button onclick="post('/api/mode?mode={{.}}')">{{.}}</button> {{end}}
	<input id="label" placeholder="label"> <button onclick="snapshot()">snapshot</button>
	<p>mode: {{.Mode}}</p>
</body>
</html>`))

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Mode  acquire.Mode
		Modes []acquire.Mode
	}{s.Loop.Mode(), []acquire.Mode{acquire.Thermal, acquire.Camera, acquire.Both}}
	if err := rootTmpl.Execute(w, data); err != nil {
		log.Printf("stream: %v", err)
	}
}

func (s *Server) still(w http.ResponseWriter, r *http.Request) {
	f, _, ok := s.Loop.Frames().Peek()
	if !ok {
		http.Error(w, "No frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := jpeg.Encode(w, f.Image, &jpeg.Options{Quality: s.quality()}); err != nil {
		log.Printf("stream: still: %v", err)
	}
}

func (s *Server) apiMode(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		m, err := acquire.ParseMode(r.FormValue("mode"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.Loop.RequestMode(m)
		writeJSON(w, http.StatusOK, map[string]acquire.Mode{"mode": m})
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]acquire.Mode{"mode": s.Loop.Mode()})
}

func (s *Server) apiSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": s.snapshot(r.FormValue("label"))})
}

func (s *Server) snapshot(label string) bool {
	if s.Labeler != nil && label != "" {
		s.Labeler.SetLabel(label)
	}
	return s.Loop.RequestSnapshot()
}

func (s *Server) apiSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "No catalog", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.FormValue("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	l, err := s.Catalog.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if l == nil {
		l = []*snapshot.Entry{}
	}
	writeJSON(w, http.StatusOK, l)
}

// Stats is the payload of /api/stats.
type Stats struct {
	acquire.Stats
	Mode    acquire.Mode `json:"mode"`
	Clients int64        `json:"clients"`
	Sent    uint64       `json:"sent"`
}

func (s *Server) apiStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &Stats{
		Stats:   s.Loop.Stats(),
		Mode:    s.Loop.Mode(),
		Clients: s.clients.Load(),
		Sent:    s.sent.Load(),
	})
}

func (s *Server) quality() int {
	if s.Quality == 0 {
		return 80
	}
	return s.Quality
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("stream: %v", err)
	}
}
