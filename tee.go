package rackcache

import (
	"bytes"
	"net/http"
)

// responseSaver is an http.ResponseWriter that records the backend's
// status, headers and body for the engine to inspect before anything is
// sent to the client.
type responseSaver struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseSaver() *responseSaver {
	return &responseSaver{header: make(http.Header)}
}

func (s *responseSaver) Header() http.Header {
	return s.header
}

func (s *responseSaver) WriteHeader(statusCode int) {
	if s.wroteHeader {
		return
	}
	s.wroteHeader = true
	s.status = statusCode
}

func (s *responseSaver) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.body.Write(b)
}

func (s *responseSaver) StatusCode() int {
	if !s.wroteHeader {
		return http.StatusOK
	}
	return s.status
}
