package channel

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/coder/websocket"

	"github.com/gridline/gridline/core/logx"
)

// WebSocket transport variant. The websocket is adapted to a net.Conn so
// the framed Channel runs unchanged on top; each frame simply rides
// inside websocket text messages instead of a raw TCP stream.

// DialWS connects to a hosting peer's websocket endpoint.
func DialWS(ctx context.Context, url string) (*Channel, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	logx.Log.Info().Str("url", url).Msg("connected to host")
	return New(websocket.NetConn(context.Background(), conn, websocket.MessageText)), nil
}

// ListenWS serves a websocket endpoint on addr and accepts exactly one
// peer. The HTTP server lives for as long as the resulting channel and
// turns away any later upgrade attempt.
func ListenWS(ctx context.Context, addr string) (*Channel, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	logx.Log.Info().Str("addr", ln.Addr().String()).Msg("waiting for peer")

	chCh := make(chan *Channel, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logx.Log.Debug().Err(err).Msg("websocket accept failed")
			return
		}
		ch := New(websocket.NetConn(context.Background(), conn, websocket.MessageText))
		select {
		case chCh <- ch:
			// Hold the handler open until the session ends; the hijacked
			// connection belongs to the channel now.
			<-ch.Done()
		default:
			ch.Close()
		}
	})}
	go func() { _ = srv.Serve(ln) }()

	select {
	case ch := <-chCh:
		logx.Log.Info().Msg("peer connected")
		go func() {
			<-ch.Done()
			_ = srv.Close()
		}()
		return ch, nil
	case <-ctx.Done():
		_ = srv.Close()
		return nil, fmt.Errorf("accept on %s: %w", addr, ctx.Err())
	}
}
