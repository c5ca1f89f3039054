package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// DefaultSignallingPort стандартный порт сигнализации H.225
const DefaultSignallingPort = "1720"

type tcpDialer struct {
	cfg Config
}

// NewTCPDialer создает Dialer для TCP или TLS (если задан cfg.TLS).
func NewTCPDialer(cfg Config) Dialer {
	return &tcpDialer{cfg: cfg}
}

func (d *tcpDialer) network() string {
	if d.cfg.TLS != nil {
		return "tls"
	}
	return "tcp"
}

func (d *tcpDialer) Dial(ctx context.Context, addr string) (Transport, error) {
	addr = withDefaultPort(addr)
	if d.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.DialTimeout)
		defer cancel()
	}

	nd := &net.Dialer{KeepAlive: d.cfg.KeepAlive}
	var (
		conn net.Conn
		err  error
	)
	if d.cfg.TLS != nil {
		td := &tls.Dialer{NetDialer: nd, Config: d.cfg.TLS}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, &TransportError{Transport: d.network(), Operation: "dial", Addr: addr, Err: err}
	}
	return newStreamTransport(d.network(), conn, d.cfg), nil
}

type tcpNetwork struct {
	tcpDialer
}

// NewTCPNetwork создает сеть TCP (TLS, если задан cfg.TLS).
func NewTCPNetwork(cfg Config) Network {
	return &tcpNetwork{tcpDialer{cfg: cfg}}
}

func (n *tcpNetwork) Listen(addr string) (Listener, error) {
	return ListenTCP(addr, n.cfg)
}

type tcpListener struct {
	network  string
	listener net.Listener
	cfg      Config
}

// ListenTCP начинает прием соединений по TCP или TLS (если задан cfg.TLS).
func ListenTCP(addr string, cfg Config) (Listener, error) {
	network := "tcp"
	var (
		l   net.Listener
		err error
	)
	if cfg.TLS != nil {
		network = "tls"
		l, err = tls.Listen("tcp", addr, cfg.TLS)
	} else {
		l, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, &TransportError{Transport: network, Operation: "listen", Addr: addr, Err: err}
	}
	return &tcpListener{network: network, listener: l, cfg: cfg}, nil
}

func (l *tcpListener) Addr() string { return l.listener.Addr().String() }

func (l *tcpListener) Close() error { return l.listener.Close() }

// Accept ожидает входящее соединение. Отмена контекста закрывает слушатель.
func (l *tcpListener) Accept(ctx context.Context) (Transport, error) {
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Transport: l.network, Operation: "accept", Addr: l.Addr(), Err: err}
	}
	if tc, ok := conn.(*net.TCPConn); ok && l.cfg.KeepAlive > 0 {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(l.cfg.KeepAlive)
	}
	return newStreamTransport(l.network, conn, l.cfg), nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, DefaultSignallingPort)
}
