package pipeline

import (
	"bufio"
	"net"
	"net/http"
)

// Committer is implemented by ResponseWriter wrappers that know whether the
// response has been committed (status line sent downstream).
type Committer interface {
	Committed() bool
}

// responseWriter tracks commit state and status for a dispatched response.
// The pipeline wraps every response before the first handoff so forward
// dispatch can detect and reject writes to a committed response.
type responseWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Committed reports whether the status line has been sent.
func (w *responseWriter) Committed() bool {
	return w.wroteHeader
}

// StatusCode returns the committed status, or 0 before commit.
func (w *responseWriter) StatusCode() int {
	return w.status
}

// BytesWritten returns the number of body bytes written so far.
func (w *responseWriter) BytesWritten() int64 {
	return w.written
}

// reset clears pending headers ahead of a forward. Only legal before commit.
func (w *responseWriter) reset() {
	h := w.Header()
	for k := range h {
		delete(h, k)
	}
}

// Flush implements http.Flusher when the underlying writer does. Flushing
// commits the response.
func (w *responseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker when the underlying writer does.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		w.wroteHeader = true // the connection is gone from our control
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap supports http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// committed probes w for commit state, seeing through wrappers that expose
// Unwrap. Unknown writers are assumed uncommitted.
func committed(w http.ResponseWriter) bool {
	for w != nil {
		if c, ok := w.(Committer); ok {
			return c.Committed()
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}
