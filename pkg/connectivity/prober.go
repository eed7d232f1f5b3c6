package connectivity

import (
	"context"
	"net"
	"time"
)

// Prober performs a single reachability check
type Prober interface {
	Check(ctx context.Context) bool
}

// ProberFunc adapts a function, such as a platform reachability callback, to Prober
type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Check(ctx context.Context) bool {
	return f(ctx)
}

// DialProber considers the backend reachable when a TCP connection to Address succeeds.
type DialProber struct {
	Address string
	Timeout time.Duration
}

func (p DialProber) Check(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
