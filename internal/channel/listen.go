package channel

import (
	"context"
	"fmt"
	"net"

	"github.com/gridline/gridline/core/logx"
)

// Listen binds addr, accepts exactly one TCP connection and returns the
// channel wrapping it. The listener is closed once the peer is in,
// whether or not the accept succeeded. Cancel or deadline ctx to bound
// the wait.
func Listen(ctx context.Context, addr string) (*Channel, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	logx.Log.Info().Str("addr", ln.Addr().String()).Msg("waiting for peer")

	accepted := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-accepted:
		}
	}()
	conn, err := ln.Accept()
	close(accepted)
	_ = ln.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("accept on %s: %w", addr, ctx.Err())
		}
		return nil, fmt.Errorf("accept on %s: %w", addr, err)
	}
	logx.Log.Info().Str("peer", conn.RemoteAddr().String()).Msg("peer connected")
	return New(conn), nil
}

// Dial connects to a listening peer at host:port.
func Dial(ctx context.Context, addr string) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	logx.Log.Info().Str("peer", conn.RemoteAddr().String()).Msg("connected to host")
	return New(conn), nil
}
