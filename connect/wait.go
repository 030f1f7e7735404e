package connect

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/matgreaves/pgjinx/spec"
)

const (
	waitInitialInterval = 10 * time.Millisecond
	waitMaxInterval     = 1 * time.Second
	waitTimeout         = 30 * time.Second
)

// Wait polls the endpoint with TCP dials and exponential backoff until
// it accepts a connection. It gives up after 30 seconds or when ctx is
// cancelled, whichever comes first.
func Wait(ctx context.Context, ep spec.Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	interval := waitInitialInterval
	var lastErr error

	for {
		if err := probe(ctx, ep.Addr()); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w (last error: %v)", ep.Addr(), ctx.Err(), lastErr)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > waitMaxInterval {
			interval = waitMaxInterval
		}
	}
}

func probe(ctx context.Context, addr string) error {
	d := net.Dialer{Timeout: 200 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}
