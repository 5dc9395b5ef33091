package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// sseWriter writes server-sent events through gin and flushes each one.
type sseWriter struct {
	c *gin.Context
}

func newSSEWriter(c *gin.Context) *sseWriter {
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	return &sseWriter{c: c}
}

func (w *sseWriter) event(name string, data any) {
	w.c.SSEvent(name, data)
	w.c.Writer.Flush()
}
