package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality   int
	MinLength int
	// SkipPaths are path prefixes served uncompressed. The exam browser
	// downloads .seb files with a plain HTTP client.
	SkipPaths []string
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

type brotliState int

const (
	// Bytes are buffered until MinLength decides the encoding.
	brotliPending brotliState = iota
	brotliCompressing
	// A flush or a small body committed the response to identity encoding.
	brotliPlain
)

// brotliWriter commits to one encoding per response. Nothing reaches the
// client before that decision.
type brotliWriter struct {
	gin.ResponseWriter
	quality   int
	minLength int
	state     brotliState
	buf       []byte
	enc       *brotli.Writer
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	switch bw.state {
	case brotliCompressing:
		return bw.enc.Write(data)
	case brotliPlain:
		return bw.ResponseWriter.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}
	if bw.Header().Get("Content-Encoding") != "" {
		return len(data), bw.commitPlain()
	}

	bw.state = brotliCompressing
	bw.Header().Set("Content-Encoding", "br")
	bw.Header().Del("Content-Length")
	bw.enc = brotli.NewWriterLevel(bw.ResponseWriter, bw.quality)
	if _, err := bw.enc.Write(bw.buf); err != nil {
		return 0, err
	}
	bw.buf = nil
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush pushes everything written so far to the client. A pending response
// goes out uncompressed.
func (bw *brotliWriter) Flush() {
	switch bw.state {
	case brotliPending:
		_ = bw.commitPlain()
	case brotliCompressing:
		_ = bw.enc.Flush()
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) commitPlain() error {
	bw.state = brotliPlain
	if len(bw.buf) == 0 {
		return nil
	}
	_, err := bw.ResponseWriter.Write(bw.buf)
	bw.buf = nil
	return err
}

// finish runs after the handler chain.
func (bw *brotliWriter) finish() error {
	switch bw.state {
	case brotliCompressing:
		return bw.enc.Close()
	case brotliPending:
		if len(bw.buf) == 0 {
			// Header-only responses such as redirects still need their status.
			bw.ResponseWriter.WriteHeaderNow()
			return nil
		}
		return bw.commitPlain()
	}
	return nil
}

func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > 11 {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if streaming(c) || hasPathPrefix(c.Request.URL.Path, cfg.SkipPaths) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			quality:        cfg.Quality,
			minLength:      cfg.MinLength,
		}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Next()
	}
}

// streaming reports requests that must reach the client unbuffered.
func streaming(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	// The WebSocket handshake fails on a wrapped writer
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func hasPathPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
