package probe

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"popos/internal/model"
)

const defaultDialTimeout = 1 * time.Second

// ConnectProber probes with a plain TCP connect. It realizes the TTL, payload
// size and pacing genes of a descriptor; the flag and window genes shape only
// raw-socket probers and are carried through unchanged.
type ConnectProber struct {
	DialTimeout time.Duration
}

func (p *ConnectProber) Send(ctx context.Context, d model.Descriptor, addr string, port int) Outcome {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	latency := time.Since(start)

	if err != nil {
		pause(ctx, d.Delay)
		return Outcome{State: classifyDialError(err), Latency: latency}
	}
	defer conn.Close()

	if d.TTL > 0 {
		// Best effort: probes whose morphology the stack refuses still count.
		_ = ipv4.NewConn(conn).SetTTL(d.TTL)
	}
	if d.PayloadSize > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		_, _ = conn.Write(bytes.Repeat([]byte{'A'}, d.PayloadSize))
	}

	pause(ctx, d.Delay)
	return Outcome{State: StateOpen, Latency: latency}
}

func classifyDialError(err error) State {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return StateClosed
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return StateFiltered
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StateFiltered
	}
	return StateNoResponse
}

// pause enforces the descriptor's inter-probe delay, abandoning the wait on
// cancellation.
func pause(ctx context.Context, seconds float64) {
	if seconds <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
