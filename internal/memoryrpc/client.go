// Package memoryrpc is the client for the long-lived memory worker, per
// §4.11: a length-prefixed, JSON-framed protocol over a Unix domain socket,
// with a hard 2-second timeout and no retry — a slow or wedged worker must
// never hold up tool enforcement. The client carries its own circuit
// breaker (key "memory_socket") so a worker that keeps failing stops being
// dialed at all for a cooldown window, the same CLOSED/OPEN/HALF_OPEN
// machinery internal/breaker uses for gates.
package memoryrpc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ozmaster/torus-enforcer/internal/breaker"
	"github.com/ozmaster/torus-enforcer/internal/errs"
	"github.com/ozmaster/torus-enforcer/internal/registry"
)

const (
	// CircuitKey is the breaker.Registry key the memory socket's health is
	// tracked under, isolated from any gate's circuit.
	CircuitKey = "memory_socket"

	callTimeout = 2 * time.Second
)

// BreakerConfig is the memory socket's own trip/cooldown behavior: 3 failed
// calls within 30 seconds trips the circuit for a 1-second cooldown —
// tighter than a gate's breaker, since a wedged worker should recover a
// retrying session quickly rather than stay dark for a full minute.
func BreakerConfig() breaker.Config {
	return breaker.Config{CrashThreshold: 3, CrashWindow: 30 * time.Second, Cooldown: 1 * time.Second}
}

// Method enumerates the memory worker's RPC surface.
type Method string

const (
	MethodPing   Method = "ping"
	MethodCount  Method = "count"
	MethodQuery  Method = "query"
	MethodGet    Method = "get"
	MethodUpsert Method = "upsert"
	MethodDelete Method = "delete"
)

// request is the wire envelope sent to the worker.
type request struct {
	Method Method `json:"method"`
	Params any    `json:"params"`
}

// response is the wire envelope received from the worker.
type response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Client talks to the memory worker over a Unix domain socket.
type Client struct {
	SocketPath string
	Breaker    *breaker.Registry
	Dial       func(ctx context.Context, path string) (net.Conn, error)
}

// New returns a Client dialing socketPath, tracking the worker's health in br
// under CircuitKey. cmd/enforcer passes a Registry of its own, configured
// with BreakerConfig and persisted apart from the gate breakers.
func New(socketPath string, br *breaker.Registry) *Client {
	return &Client{
		SocketPath: socketPath,
		Breaker:    br,
		Dial: func(ctx context.Context, path string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}
}

// Call invokes method with params against the worker, unmarshaling the
// result into out (a pointer, or nil to discard). The call is bounded by a
// hard 2-second deadline regardless of ctx's own deadline, and never
// retries. If the memory circuit is OPEN, Call fails immediately with
// errs.KindWorkerUnavailable without attempting to dial.
func (c *Client) Call(ctx context.Context, method Method, params any, out any) error {
	now := time.Now()
	if c.Breaker != nil && !c.Breaker.Allow(CircuitKey, registry.Tier2, now) {
		return errs.New(errs.KindWorkerUnavailable, "memory worker circuit is open")
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := c.call(callCtx, method, params, out); err != nil {
		if c.Breaker != nil {
			c.Breaker.RecordCrash(CircuitKey, registry.Tier2, now)
		}
		return errs.Wrap(errs.KindWorkerUnavailable, fmt.Sprintf("memory worker call %q failed", method), err)
	}
	if c.Breaker != nil {
		c.Breaker.RecordSuccess(CircuitKey, registry.Tier2, now)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method Method, params any, out any) error {
	conn, err := c.Dial(ctx, c.SocketPath)
	if err != nil {
		return fmt.Errorf("dial memory socket: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(request{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := writeFrame(conn, payload); err != nil {
		return fmt.Errorf("write request frame: %w", err)
	}

	frame, err := readFrame(conn)
	if err != nil {
		return fmt.Errorf("read response frame: %w", err)
	}
	var resp response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("memory worker error: %s", resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// writeFrame writes a 4-byte big-endian length prefix followed by payload.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads a 4-byte big-endian length prefix followed by that many
// bytes of payload.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Ping checks worker liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, MethodPing, nil, nil)
}
