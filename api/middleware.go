package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// decompressBody inflates gzip submissions so the handler always sees plain
// JSON. A body that does not open as gzip is rejected with 400 and recorded
// as a decode_body failure of route.
func decompressBody(logger *log.Logger, route string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !gzipEncoded(req.Header.Values(echo.HeaderContentEncoding)) {
				return next(c)
			}

			zr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				metrics, ctx := newRequestMetrics(req.Context(), logger, route)
				c.SetRequest(req.WithContext(ctx))
				metrics.SetErrorStage("decode_body")
				err = errorJSON(c, http.StatusBadRequest, "Invalid gzip body")
				metrics.Log(c.Response().Status, err)
				return err
			}
			req.Body = &gzipBody{zr: zr, compressed: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// gzipEncoded reports whether any Content-Encoding value names gzip.
func gzipEncoded(values []string) bool {
	for _, v := range values {
		for _, enc := range strings.Split(v, ",") {
			switch strings.ToLower(strings.TrimSpace(enc)) {
			case "gzip", "x-gzip":
				return true
			}
		}
	}
	return false
}

// gzipBody closes both the inflater and the compressed stream under it.
type gzipBody struct {
	zr         *gzip.Reader
	compressed io.ReadCloser
}

func (b *gzipBody) Read(p []byte) (int, error) { return b.zr.Read(p) }

func (b *gzipBody) Close() error {
	zerr := b.zr.Close()
	if err := b.compressed.Close(); err != nil {
		return err
	}
	return zerr
}
