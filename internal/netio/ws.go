package netio

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	wsDefaultPath      = "/privy"
	wsDefaultReadLimit = 16 * 1024 * 1024 // 16 MiB, generous relative to wire.MaxFrameSize
)

// WSDialer dials WebSocket connections. addr is either a bare host:port,
// which is given the ws:// scheme and wsDefaultPath, or a full ws(s)://
// URL.
type WSDialer struct{}

func (WSDialer) Dial(ctx context.Context, addr string) (Stream, error) {
	conn, _, err := websocket.Dial(ctx, wsURL(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("netio: websocket dial %s: %w", addr, err)
	}
	conn.SetReadLimit(wsDefaultReadLimit)
	return &wsStream{conn: conn, ctx: context.Background()}, nil
}

func wsURL(addr string) string {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr
	}
	return "ws://" + addr + wsDefaultPath
}

// WSListener accepts WebSocket connections over an HTTP server bound to
// a plain TCP listener.
type WSListener struct {
	netLn  net.Listener
	server *http.Server
	connCh chan *wsStream
	closed atomic.Bool
	once   sync.Once
}

// ListenWS binds addr and begins accepting WebSocket upgrades at
// wsDefaultPath.
func ListenWS(addr string) (*WSListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netio: listen %s: %w", addr, err)
	}

	l := &WSListener{
		netLn:  ln,
		connCh: make(chan *wsStream, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(wsDefaultPath, l.handleUpgrade)
	l.server = &http.Server{Handler: mux}

	go l.server.Serve(ln)
	return l, nil
}

func (l *WSListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if l.closed.Load() {
		http.Error(w, "listener closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(wsDefaultReadLimit)

	stream := &wsStream{conn: conn, ctx: context.Background()}
	select {
	case l.connCh <- stream:
	default:
		conn.Close(websocket.StatusTryAgainLater, "accept queue full")
	}
}

func (l *WSListener) Accept(ctx context.Context) (Stream, error) {
	select {
	case s := <-l.connCh:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *WSListener) Addr() net.Addr { return l.netLn.Addr() }

func (l *WSListener) Close() error {
	var err error
	l.once.Do(func() {
		l.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}

// wsStream adapts a websocket.Conn to Stream using binary messages. A
// WebSocket message boundary does not correspond to a wire.Frame
// boundary, so reads are buffered across messages like a normal stream.
type wsStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	reader interface{ Read([]byte) (int, error) }
	mu     sync.Mutex
	closed atomic.Bool
}

func (s *wsStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.reader != nil {
		n, err := s.reader.Read(p)
		if err != nil {
			s.reader = nil
			s.mu.Unlock()
			if n > 0 {
				return n, nil
			}
		} else {
			s.mu.Unlock()
			return n, nil
		}
	} else {
		s.mu.Unlock()
	}

	msgType, r, err := s.conn.Reader(s.ctx)
	if err != nil {
		return 0, fmt.Errorf("netio: websocket read: %w", err)
	}
	if msgType != websocket.MessageBinary {
		return 0, fmt.Errorf("netio: unexpected websocket message type %v", msgType)
	}

	s.mu.Lock()
	s.reader = r
	n, err := r.Read(p)
	if err != nil {
		s.reader = nil
		err = nil
	}
	s.mu.Unlock()
	return n, err
}

func (s *wsStream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("netio: write to closed websocket stream")
	}
	if err := s.conn.Write(s.ctx, websocket.MessageBinary, p); err != nil {
		return 0, fmt.Errorf("netio: websocket write: %w", err)
	}
	return len(p), nil
}

// CloseWrite has no WebSocket equivalent to a TCP half-close; the
// session loop treats the connection as fully closed on EOF from the
// peer regardless, so this is a no-op.
func (s *wsStream) CloseWrite() error { return nil }

func (s *wsStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close(websocket.StatusNormalClosure, "stream closed")
}
