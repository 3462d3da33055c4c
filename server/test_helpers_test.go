package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

const (
	doubleSrc = "S> =43 s s + p @\n"
	echoSrc   = "S> =? p @\n"
	loopSrc   = "S> . <\n"
)

// newTestClient starts a DebugServer behind httptest and returns a client
// talking to it. Everything is torn down with the test.
func newTestClient(t *testing.T, opts ...ServerOption) (*DebugClient, *DebugServer) {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return NewDebugClient(ts.Client(), ts.URL), srv
}

// openSession opens src and returns the session ID.
func openSession(t *testing.T, c *DebugClient, req *OpenRequest) string {
	t.Helper()
	resp, err := c.Open(bg(), connectReq(req))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if resp.Msg.SessionID == "" {
		t.Fatal("Open returned an empty session id")
	}
	return resp.Msg.SessionID
}

// connectReq wraps a message in a connect.Request.
func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

// bg returns a background context.
func bg() context.Context {
	return context.Background()
}

// codeOf returns the connect error code of err, or 0 for nil / non-connect errors.
func codeOf(err error) connect.Code {
	if err == nil {
		return 0
	}
	return connect.CodeOf(err)
}
