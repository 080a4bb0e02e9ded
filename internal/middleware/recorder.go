package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// statusRecorder remembers what a handler wrote so that logging and metrics
// can report it afterwards. A hijacked connection counts as a protocol
// switch, since the WebSocket upgrader writes its 101 on the raw conn.
type statusRecorder struct {
	http.ResponseWriter

	status   int
	bytes    int
	upgraded bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w}
}

// WriteHeader records the first status code and forwards it.
func (r *statusRecorder) WriteHeader(code int) {
	if r.status != 0 {
		return
	}
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Write forwards the body, implying 200 when no status was written.
func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Hijack implements http.Hijacker so WebSocket upgrades pass through.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}

	conn, rw, err := hijacker.Hijack()
	if err == nil {
		r.upgraded = true
	}
	return conn, rw, err
}

// Flush implements http.Flusher.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// started reports whether the response can no longer be replaced.
func (r *statusRecorder) started() bool {
	return r.status != 0 || r.upgraded
}

// statusCode is the status the client saw.
func (r *statusRecorder) statusCode() int {
	switch {
	case r.upgraded:
		return http.StatusSwitchingProtocols
	case r.status == 0:
		return http.StatusOK
	default:
		return r.status
	}
}
