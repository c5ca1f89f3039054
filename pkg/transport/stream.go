package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// streamTransport транспорт PDU поверх потокового соединения (TCP или TLS).
type streamTransport struct {
	network string
	conn    net.Conn
	cfg     Config

	readMu  sync.Mutex
	pending []byte
	chunk   []byte

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newStreamTransport(network string, conn net.Conn, cfg Config) *streamTransport {
	if cfg.MaxPDUSize <= 0 || cfg.MaxPDUSize > maxTPKTPayload {
		cfg.MaxPDUSize = maxTPKTPayload
	}
	return &streamTransport{
		network: network,
		conn:    conn,
		cfg:     cfg,
		chunk:   make([]byte, 4096),
	}
}

func (t *streamTransport) LocalAddr() string  { return t.conn.LocalAddr().String() }
func (t *streamTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }
func (t *streamTransport) IsClosed() bool     { return t.closed.Load() }

// ReadPDU накапливает байты до получения полного кадра, поэтому таймаут
// посреди кадра не нарушает разбор следующего вызова.
func (t *streamTransport) ReadPDU(timeout time.Duration) ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if t.closed.Load() {
			return nil, ErrClosed
		}
		payload, ok, err := t.nextFrame()
		if err != nil {
			return nil, t.wrap("read", err)
		}
		if ok {
			return payload, nil
		}

		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, t.wrap("read", err)
		}
		n, err := t.conn.Read(t.chunk)
		if n > 0 {
			t.pending = append(t.pending, t.chunk[:n]...)
		}
		if err != nil {
			switch {
			case isTimeout(err):
				if n > 0 {
					continue
				}
				return nil, ErrTimeout
			case t.closed.Load(), errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
				return nil, ErrClosed
			}
			return nil, t.wrap("read", err)
		}
	}
}

func (t *streamTransport) nextFrame() ([]byte, bool, error) {
	if len(t.pending) < tpktHeaderSize {
		return nil, false, nil
	}
	length := int(binary.BigEndian.Uint16(t.pending[2:4]))
	if length-tpktHeaderSize > t.cfg.MaxPDUSize {
		return nil, false, errors.Wrapf(ErrFrameTooLarge, "%d байт", length-tpktHeaderSize)
	}
	if len(t.pending) < length {
		return nil, false, nil
	}
	payload, err := ReadFrame(bytes.NewReader(t.pending[:length]), t.cfg.MaxPDUSize)
	if err != nil {
		return nil, false, err
	}
	t.pending = append(t.pending[:0], t.pending[length:]...)
	return payload, true, nil
}

func (t *streamTransport) WritePDU(data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
			return t.wrap("write", err)
		}
	}
	if err := WriteFrame(t.conn, data); err != nil {
		if t.closed.Load() || errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return t.wrap("write", err)
	}
	return nil
}

func (t *streamTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}

func (t *streamTransport) wrap(op string, err error) error {
	return &TransportError{
		Transport: t.network,
		Operation: op,
		Addr:      t.conn.RemoteAddr().String(),
		Err:       err,
	}
}
