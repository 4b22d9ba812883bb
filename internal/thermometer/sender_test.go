package thermometer

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"
)

// reserveUDPAddr returns a loopback address that was free a moment ago.
func reserveUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	addr := conn.LocalAddr().String()
	conn.Close()
	return addr
}

func TestSender_DeliversToReceiver(t *testing.T) {
	local := reserveUDPAddr(t)
	rx := startTestReceiver(t, local, time.Second)

	s, err := NewSender(SenderConfig{LocalAddress: local, TargetAddress: rx.LocalAddr().String()})
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer s.Close()

	if err := s.Send(23.5); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	waitFor(t, "sample", func() bool { return rx.Temperature() == 23.5 })
}

func TestSender_Run(t *testing.T) {
	local := reserveUDPAddr(t)
	rx := startTestReceiver(t, local, time.Second)

	s, err := NewSender(SenderConfig{LocalAddress: local, TargetAddress: rx.LocalAddr().String()})
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	next := 0.0
	go func() {
		done <- s.Run(ctx, 10*time.Millisecond, func() float64 { next++; return next })
	}()

	waitFor(t, "several samples", func() bool { return rx.Stats().SamplesPublished >= 3 })
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestNewSender_InvalidAddress(t *testing.T) {
	if _, err := NewSender(SenderConfig{LocalAddress: "127.0.0.1:0"}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("NewSender() error = %v, want ErrInvalidAddress", err)
	}
}

func TestGenerator_Value(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start
	g := &Generator{From: 30, Delta: 5, started: start, now: func() time.Time { return now }}

	after := func(secs float64) time.Duration { return time.Duration(secs * float64(time.Second)) }

	tests := []struct {
		elapsed time.Duration
		want    float64
	}{
		{0, 35},
		{after(math.Pi), 30},
		{after(2 * math.Pi), 25},
	}

	for _, tt := range tests {
		now = start.Add(tt.elapsed)
		if got := g.Value(); math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("Value() at %v = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}
