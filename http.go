package oidcreq

import (
	"fmt"
	"net/http"

	"github.com/vdbulcke/assert"
)

// LIMIT_HTTP_RESP_BODY_MAX_SIZE_BYTES default max number of bytes
// read from an http response body (1 MiB)
const LIMIT_HTTP_RESP_BODY_MAX_SIZE_BYTES int64 = 1 << 20

type httpLimitClient struct {
	maxSizeBytes int64
	client       *http.Client
}

func newHttpLimitClient(n int64, c *http.Client) *httpLimitClient {
	assert.NotNil(c, assert.Panic, "http-limit: client cannot be nil")

	return &httpLimitClient{
		maxSizeBytes: n,
		client:       c,
	}
}

// HttpErr is returned when the remote endpoint
// answered with an unexpected status or payload.
type HttpErr struct {
	RespBody       []byte
	StatusCode     int
	ResponseHeader http.Header
	Err            error
}

func (e *HttpErr) Error() string {
	return fmt.Sprintf("http-error: status %d: %s", e.StatusCode, e.Err)
}

func (e *HttpErr) Unwrap() error {
	return e.Err
}
