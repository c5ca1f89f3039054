package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const memoryQueueSize = 256

var _ Network = (*MemoryNetwork)(nil)

// MemoryNetwork сеть в памяти процесса: слушатели регистрируются по
// имени, каждое соединение представлено парой очередей PDU.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
	nextPort  atomic.Uint32
}

// NewMemoryNetwork создает пустую сеть в памяти.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{listeners: make(map[string]*memoryListener)}
}

// Listen регистрирует слушатель. Пустой адрес или нулевой порт
// выбирает свободный адрес.
func (n *MemoryNetwork) Listen(addr string) (Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if addr == "" || strings.HasSuffix(addr, ":0") {
		addr = fmt.Sprintf("mem:%d", 10000+n.nextPort.Add(1))
	}
	if _, exists := n.listeners[addr]; exists {
		return nil, &TransportError{Transport: "memory", Operation: "listen", Addr: addr, Err: fmt.Errorf("адрес занят")}
	}
	l := &memoryListener{
		network: n,
		addr:    addr,
		accept:  make(chan Transport, 16),
		done:    make(chan struct{}),
	}
	n.listeners[addr] = l
	return l, nil
}

// Dial соединяется со слушателем по адресу.
func (n *MemoryNetwork) Dial(ctx context.Context, addr string) (Transport, error) {
	n.mu.Lock()
	l, ok := n.listeners[addr]
	n.mu.Unlock()
	if !ok {
		return nil, &TransportError{Transport: "memory", Operation: "dial", Addr: addr, Err: ErrUnknownAddress}
	}

	local := fmt.Sprintf("mem:%d", 20000+n.nextPort.Add(1))
	client, server := newMemoryPair(local, addr)
	select {
	case l.accept <- server:
		return client, nil
	case <-l.done:
		return nil, &TransportError{Transport: "memory", Operation: "dial", Addr: addr, Err: ErrClosed}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *MemoryNetwork) remove(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, addr)
}

type memoryListener struct {
	network *MemoryNetwork
	addr    string
	accept  chan Transport
	done    chan struct{}
	once    sync.Once
}

func (l *memoryListener) Addr() string { return l.addr }

func (l *memoryListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case t := <-l.accept:
		return t, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.network.remove(l.addr)
	})
	return nil
}

// memoryLink общее состояние пары: закрытие любой стороны закрывает обе.
type memoryLink struct {
	done chan struct{}
	once sync.Once
}

func (l *memoryLink) close() {
	l.once.Do(func() { close(l.done) })
}

type memoryTransport struct {
	local, remote string
	in            chan []byte
	peer          *memoryTransport
	link          *memoryLink
	closed        atomic.Bool
}

func newMemoryPair(a, b string) (*memoryTransport, *memoryTransport) {
	link := &memoryLink{done: make(chan struct{})}
	x := &memoryTransport{local: a, remote: b, in: make(chan []byte, memoryQueueSize), link: link}
	y := &memoryTransport{local: b, remote: a, in: make(chan []byte, memoryQueueSize), link: link}
	x.peer, y.peer = y, x
	return x, y
}

func (t *memoryTransport) LocalAddr() string  { return t.local }
func (t *memoryTransport) RemoteAddr() string { return t.remote }
func (t *memoryTransport) IsClosed() bool     { return t.closed.Load() }

func (t *memoryTransport) ReadPDU(timeout time.Duration) ([]byte, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}
	// Данные, отправленные до закрытия, доставляются первыми.
	select {
	case data := <-t.in:
		return data, nil
	default:
	}
	select {
	case data := <-t.in:
		return data, nil
	case <-t.link.done:
		return nil, ErrClosed
	case <-timer:
		return nil, ErrTimeout
	}
}

func (t *memoryTransport) WritePDU(data []byte) error {
	if t.closed.Load() {
		return ErrClosed
	}
	cp := append([]byte(nil), data...)
	select {
	case <-t.link.done:
		return ErrClosed
	default:
	}
	select {
	case t.peer.in <- cp:
		return nil
	case <-t.link.done:
		return ErrClosed
	}
}

func (t *memoryTransport) Close() error {
	if t.closed.CompareAndSwap(false, true) {
		t.link.close()
	}
	return nil
}
