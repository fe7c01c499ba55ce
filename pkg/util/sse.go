package util

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
)

var (
	sseEvent = []byte("event: ")
	sseBegin = []byte("data: ")
	sseEnd   = []byte("\n\n")
)

// SSE writes server-sent events. Writes are serialized, so one stream
// can be shared by several goroutines.
type SSE struct {
	http.ResponseWriter
	context.Context
	mu sync.Mutex
}

func (sse *SSE) Write(data []byte) (n int, err error) {
	if err = sse.Err(); err != nil {
		return
	}
	sse.mu.Lock()
	defer sse.mu.Unlock()
	buffers := net.Buffers{sseBegin, data, sseEnd}
	nn, err := buffers.WriteTo(sse.ResponseWriter)
	if err == nil {
		sse.flush()
	}
	return int(nn), err
}

func (sse *SSE) WriteEvent(event string, data []byte) (err error) {
	if err = sse.Err(); err != nil {
		return
	}
	sse.mu.Lock()
	defer sse.mu.Unlock()
	buffers := net.Buffers{sseEvent, []byte(event + "\n"), sseBegin, data, sseEnd}
	if _, err = buffers.WriteTo(sse.ResponseWriter); err == nil {
		sse.flush()
	}
	return
}

func (sse *SSE) flush() {
	if f, ok := sse.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sse *SSE) WriteJSON(data any) error {
	out, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = sse.Write(out)
	return err
}

func (sse *SSE) WriteEventJSON(event string, data any) error {
	out, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return sse.WriteEvent(event, out)
}

func NewSSE(w http.ResponseWriter, ctx context.Context) *SSE {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("Access-Control-Allow-Origin", "*")
	return &SSE{
		ResponseWriter: w,
		Context:        ctx,
	}
}
