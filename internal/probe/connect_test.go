package probe

import (
	"context"
	"io"
	"net"
	"strconv"
	"syscall"
	"testing"
	"time"

	"popos/internal/model"
)

func TestConnectProberOpenPort(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	received := make(chan int, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			received <- -1
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- len(data)
	}()

	addr, port := splitListener(t, listener)
	prober := &ConnectProber{DialTimeout: time.Second}
	d := model.Descriptor{TTL: 64, PayloadSize: 128, Flags: "S", WindowSize: 8192}

	outcome := prober.Send(context.Background(), d, addr, port)
	if outcome.State != StateOpen {
		t.Fatalf("state = %s, want open", outcome.State)
	}
	if !outcome.Determined() {
		t.Fatal("an open port is a determined outcome")
	}

	select {
	case n := <-received:
		if n != 128 {
			t.Fatalf("server received %d payload bytes, want 128", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the probe")
	}
}

func TestConnectProberClosedPort(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr, port := splitListener(t, listener)
	listener.Close()

	prober := &ConnectProber{DialTimeout: time.Second}
	outcome := prober.Send(context.Background(), model.Descriptor{TTL: 64, Flags: "S"}, addr, port)
	if outcome.State != StateClosed {
		t.Fatalf("state = %s, want closed", outcome.State)
	}
}

func TestConnectProberHonorsDelay(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr, port := splitListener(t, listener)
	prober := &ConnectProber{DialTimeout: time.Second}
	d := model.Descriptor{TTL: 64, Flags: "S", Delay: 0.1}

	start := time.Now()
	prober.Send(context.Background(), d, addr, port)
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("probe returned after %s, want the 100ms pacing delay", elapsed)
	}
}

func TestConnectProberCancelledDelay(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr, port := splitListener(t, listener)
	prober := &ConnectProber{DialTimeout: time.Second}
	d := model.Descriptor{TTL: 64, Flags: "S", Delay: 30}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	prober.Send(ctx, d, addr, port)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancelled probe still waited %s", elapsed)
	}
}

func TestClassifyDialError(t *testing.T) {
	if got := classifyDialError(syscall.ECONNREFUSED); got != StateClosed {
		t.Fatalf("ECONNREFUSED classified as %s", got)
	}
	if got := classifyDialError(context.DeadlineExceeded); got != StateFiltered {
		t.Fatalf("deadline classified as %s", got)
	}
	if got := classifyDialError(io.ErrUnexpectedEOF); got != StateNoResponse {
		t.Fatalf("unknown error classified as %s", got)
	}
}

func splitListener(t *testing.T, listener net.Listener) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}
