package memoryrpc

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozmaster/torus-enforcer/internal/breaker"
	"github.com/ozmaster/torus-enforcer/internal/errs"
	"github.com/ozmaster/torus-enforcer/internal/registry"
)

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, path
}

func serveOnce(t *testing.T, ln net.Listener, handle func(req request) response) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		frame, err := readFrame(conn)
		if err != nil {
			return
		}
		var req request
		if err := json.Unmarshal(frame, &req); err != nil {
			return
		}
		resp := handle(req)
		data, err := json.Marshal(resp)
		if err != nil {
			return
		}
		_ = writeFrame(conn, data)
	}()
}

func TestClient_CallRoundTrip(t *testing.T) {
	ln, path := listen(t)
	serveOnce(t, ln, func(req request) response {
		assert.Equal(t, MethodQuery, req.Method)
		result, _ := json.Marshal(map[string]any{"found": true})
		return response{OK: true, Result: result}
	})

	c := New(path, breaker.NewRegistry())
	var out struct {
		Found bool `json:"found"`
	}
	err := c.Call(context.Background(), MethodQuery, map[string]string{"path": "/tmp/x.py"}, &out)
	require.NoError(t, err)
	assert.True(t, out.Found)
}

func TestClient_ErrorResponseReturnsError(t *testing.T) {
	ln, path := listen(t)
	serveOnce(t, ln, func(req request) response {
		return response{OK: false, Error: "not found"}
	})

	c := New(path, breaker.NewRegistry())
	err := c.Call(context.Background(), MethodGet, nil, nil)
	assert.Error(t, err)
}

func TestClient_DialFailureIsWorkerUnavailable(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "nonexistent.sock"), breaker.NewRegistry())
	err := c.Call(context.Background(), MethodPing, nil, nil)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindWorkerUnavailable, kind)
}

func TestClient_RepeatedFailuresTripCircuitAndFastFail(t *testing.T) {
	br := breaker.NewRegistryWithConfig(breaker.Config{CrashThreshold: 2, CrashWindow: 30 * time.Second, Cooldown: time.Minute})
	badPath := filepath.Join(t.TempDir(), "nonexistent.sock")

	dialCalls := 0
	c := New(badPath, br)
	c.Dial = func(ctx context.Context, path string) (net.Conn, error) {
		dialCalls++
		return nil, context.DeadlineExceeded
	}

	for i := 0; i < 2; i++ {
		err := c.Call(context.Background(), MethodPing, nil, nil)
		assert.Error(t, err)
	}
	require.Equal(t, 2, dialCalls)

	// circuit should now be open: a third call must fail without dialing again
	err := c.Call(context.Background(), MethodPing, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, dialCalls, "breaker should short-circuit the dial once open")
}

func TestClient_SuccessLeavesCircuitClosed(t *testing.T) {
	br := breaker.NewRegistry()
	ln, path := listen(t)
	serveOnce(t, ln, func(req request) response {
		return response{OK: true}
	})

	c := New(path, br)
	require.NoError(t, c.Call(context.Background(), MethodPing, nil, nil))
	assert.True(t, br.Allow(CircuitKey, registry.Tier2, time.Now()))
}
