// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/mailbox"
	"github.com/dboth/thermalplant/thermal"
)

// mjpeg sends every frame as a part of a multipart/x-mixed-replace response.
//
// A slow client skips frames; it always gets the latest one.
func (s *Server) mjpeg(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	s.clients.Add(1)
	defer s.clients.Add(-1)
	log.Printf("stream: mjpeg client %s from %s", id, r.RemoteAddr)

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	flusher, _ := w.(http.Flusher)
	buf := &bytes.Buffer{}
	var seq uint64
	for {
		f, n, err := s.Loop.Frames().Wait(r.Context(), seq)
		if err != nil {
			if !errors.Is(err, mailbox.ErrClosed) && !errors.Is(err, context.Canceled) {
				log.Printf("stream: mjpeg client %s: %v", id, err)
			}
			return
		}
		seq = n
		buf.Reset()
		if err := jpeg.Encode(buf, f.Image, &jpeg.Options{Quality: s.quality()}); err != nil {
			log.Printf("stream: mjpeg client %s: %v", id, err)
			return
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", "image/jpeg")
		h.Set("Content-Length", strconv.Itoa(buf.Len()))
		part, err := mw.CreatePart(h)
		if err == nil {
			_, err = part.Write(buf.Bytes())
		}
		if err != nil {
			log.Printf("stream: mjpeg client %s gone: %v", id, err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		s.sent.Add(1)
	}
}

// FrameMessage is sent on the websocket for every frame.
type FrameMessage struct {
	Seq    uint64                   `json:"seq"`
	Time   time.Time                `json:"time"`
	Mode   acquire.Mode             `json:"mode"`
	Width  int                      `json:"width"`
	Height int                      `json:"height"`
	Flash  bool                     `json:"flash,omitempty"`
	Info   *thermal.CalibrationInfo `json:"info,omitempty"`
}

// Command is received on the websocket.
type Command struct {
	Mode     string `json:"mode,omitempty"`
	Snapshot bool   `json:"snapshot,omitempty"`
	Label    string `json:"label,omitempty"`
}

// ws pushes the metadata of each frame and accepts commands.
func (s *Server) ws(conn *websocket.Conn) {
	defer conn.Close()
	id := uuid.NewString()
	s.clients.Add(1)
	defer s.clients.Add(-1)
	log.Printf("stream: websocket client %s from %s", id, conn.Request().RemoteAddr)
	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()

	go func() {
		// Reading stops when the client goes away, which stops the writer.
		defer cancel()
		for {
			var cmd Command
			if err := websocket.JSON.Receive(conn, &cmd); err != nil {
				return
			}
			if err := s.apply(&cmd); err != nil {
				log.Printf("stream: websocket client %s: %v", id, err)
			}
		}
	}()

	var seq uint64
	for {
		f, n, err := s.Loop.Frames().Wait(ctx, seq)
		if err != nil {
			return
		}
		seq = n
		b := f.Image.Bounds()
		msg := &FrameMessage{
			Seq:    f.Seq,
			Time:   f.Time,
			Mode:   f.Mode,
			Width:  b.Dx(),
			Height: b.Dy(),
			Flash:  f.Flash,
			Info:   f.Info,
		}
		if err := websocket.JSON.Send(conn, msg); err != nil {
			log.Printf("stream: websocket client %s gone: %v", id, err)
			return
		}
		s.sent.Add(1)
	}
}

func (s *Server) apply(cmd *Command) error {
	if cmd.Mode != "" {
		m, err := acquire.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		s.Loop.RequestMode(m)
	}
	if cmd.Snapshot {
		s.snapshot(cmd.Label)
	}
	return nil
}

// Private details.

// loggingHandler logs the long lived requests once they complete.
type loggingHandler struct {
	handler http.Handler
}

type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Flush is needed for the MJPEG stream.
func (l *loggingResponseWriter) Flush() {
	if f, ok := l.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is needed for websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := l.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	l.handler.ServeHTTP(lrw, r)
	log.Printf("%s - %3d %6db %4s %s %s\n", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI, time.Since(start).Round(time.Millisecond))
}
