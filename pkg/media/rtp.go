package media

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pkg/errors"

	"github.com/arzzra/h323phone/pkg/mediafmt"
)

const (
	// MinRTPPacketSize минимальный размер RTP заголовка
	MinRTPPacketSize = 12
	// MaxRTPPacketSize ограничение MTU
	MaxRTPPacketSize = 1500
)

// RTPConfig настройки RTP сессий
type RTPConfig struct {
	// LocalInterface IP адрес локального интерфейса
	LocalInterface string
	// DSCP маркировка QoS (46 = EF для голоса)
	DSCP int
	// HandshakeTimeout ограничивает рукопожатие DTLS
	HandshakeTimeout time.Duration
}

// DefaultRTPConfig возвращает настройки по умолчанию
func DefaultRTPConfig() RTPConfig {
	return RTPConfig{
		LocalInterface:   "127.0.0.1",
		DSCP:             46,
		HandshakeTimeout: 10 * time.Second,
	}
}

// RTPFactory фабрика RTP сессий одного вызова.
type RTPFactory struct {
	cfg    RTPConfig
	ports  *PortAllocator
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[uint]*RTPSession
	reserved map[uint]int
}

// NewRTPFactory создает фабрику. Распределитель портов разделяется между вызовами.
func NewRTPFactory(cfg RTPConfig, ports *PortAllocator) *RTPFactory {
	return &RTPFactory{
		cfg:      cfg,
		ports:    ports,
		logger:   slog.Default().With(slog.String("component", "rtp")),
		sessions: make(map[uint]*RTPSession),
		reserved: make(map[uint]int),
	}
}

func (f *RTPFactory) UseSession(id uint, mediaType mediafmt.MediaType) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	s, err := f.newSession(id, mediaType)
	if err != nil {
		return nil, err
	}
	f.sessions[id] = s
	return s, nil
}

func (f *RTPFactory) ReserveAddress(id uint) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[id]; ok {
		return s.LocalAddress(), nil
	}
	port, ok := f.reserved[id]
	if !ok {
		var err error
		if port, err = f.ports.Allocate(); err != nil {
			return "", err
		}
		f.reserved[id] = port
	}
	return net.JoinHostPort(f.cfg.LocalInterface, strconv.Itoa(port)), nil
}

func (f *RTPFactory) newSession(id uint, mediaType mediafmt.MediaType) (*RTPSession, error) {
	port, ok := f.reserved[id]
	if ok {
		delete(f.reserved, id)
	} else {
		var err error
		if port, err = f.ports.Allocate(); err != nil {
			return nil, err
		}
	}
	addr := &net.UDPAddr{IP: net.ParseIP(f.cfg.LocalInterface), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		f.ports.Release(port)
		return nil, errors.Wrapf(err, "сессия %d: открытие UDP %s", id, addr)
	}
	if err := setSockOptForVoice(conn, f.cfg.DSCP); err != nil {
		f.logger.Warn("не удалось настроить сокет", slog.Any("error", err))
	}

	s := &RTPSession{
		id:        id,
		mediaType: mediaType,
		conn:      conn,
		port:      port,
		cfg:       f.cfg,
		release:   func() { f.ports.Release(port) },
		ssrc:      randomUint32(),
	}
	s.seq.Store(uint32(randomUint32() & 0xFFFF))
	f.logger.Debug("медиа сессия создана",
		slog.Int("session_id", int(id)),
		slog.String("local", conn.LocalAddr().String()))
	return s, nil
}

func (f *RTPFactory) ReleaseSession(id uint) {
	f.mu.Lock()
	s, ok := f.sessions[id]
	delete(f.sessions, id)
	if port, reserved := f.reserved[id]; reserved {
		delete(f.reserved, id)
		f.ports.Release(port)
	}
	f.mu.Unlock()
	if ok {
		s.Close()
	}
}

func (f *RTPFactory) Close() error {
	f.mu.Lock()
	sessions := f.sessions
	f.sessions = make(map[uint]*RTPSession)
	for id, port := range f.reserved {
		delete(f.reserved, id)
		f.ports.Release(port)
	}
	f.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	return nil
}

// RTPSession RTP сессия поверх UDP. Передача до вызова Open невозможна,
// прием возможен сразу после создания.
type RTPSession struct {
	id        uint
	mediaType mediafmt.MediaType
	conn      *net.UDPConn
	port      int
	cfg       RTPConfig
	release   func()

	ssrc     uint32
	seq      atomic.Uint32
	paused   atomic.Bool
	closed   atomic.Bool
	sent     atomic.Uint64
	received atomic.Uint64

	mu        sync.RWMutex
	remote    *net.UDPAddr
	suite     string
	key       []byte
	initiator bool
	secure    net.Conn
}

func (s *RTPSession) ID() uint                      { return s.id }
func (s *RTPSession) MediaType() mediafmt.MediaType { return s.mediaType }
func (s *RTPSession) LocalAddress() string          { return s.conn.LocalAddr().String() }
func (s *RTPSession) SetPaused(paused bool)         { s.paused.Store(paused) }
func (s *RTPSession) IsPaused() bool                { return s.paused.Load() }

// PacketsSent количество отправленных пакетов
func (s *RTPSession) PacketsSent() uint64 { return s.sent.Load() }

// PacketsReceived количество принятых пакетов
func (s *RTPSession) PacketsReceived() uint64 { return s.received.Load() }

func (s *RTPSession) Open(remoteAddr string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	addr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return errors.Wrapf(err, "сессия %d: разрешение адреса %s", s.id, remoteAddr)
	}
	s.mu.Lock()
	s.remote = addr
	s.mu.Unlock()
	return nil
}

func (s *RTPSession) ApplyCryptoKey(suite string, key []byte, initiator bool) error {
	if len(key) == 0 {
		return fmt.Errorf("сессия %d: пустой ключ", s.id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return nil
	}
	s.suite = suite
	s.key = append([]byte(nil), key...)
	s.initiator = initiator
	return nil
}

// WritePacket отправляет полезную нагрузку в RTP пакете. На паузе пакет
// отбрасывается без ошибки.
func (s *RTPSession) WritePacket(payload []byte, payloadType uint8, timestamp uint32, marker bool) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.paused.Load() {
		return nil
	}
	s.mu.RLock()
	remote, secure := s.remote, s.secure
	s.mu.RUnlock()
	if remote == nil {
		return ErrNoRemoteAddress
	}

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: uint16(s.seq.Add(1)),
			Timestamp:      timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	data, err := packet.Marshal()
	if err != nil {
		return errors.Wrap(err, "маршалинг RTP пакета")
	}
	if len(data) > MaxRTPPacketSize {
		return fmt.Errorf("пакет слишком велик: %d байт", len(data))
	}

	if secure != nil {
		_, err = secure.Write(data)
	} else {
		_, err = s.conn.WriteToUDP(data, remote)
	}
	if err != nil {
		return errors.Wrap(err, "отправка RTP")
	}
	s.sent.Add(1)
	return nil
}

// ReadPacket принимает один RTP пакет с ограничением по времени.
func (s *RTPSession) ReadPacket(timeout time.Duration) (*rtp.Packet, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	s.mu.RLock()
	secure := s.secure
	s.mu.RUnlock()

	buf := make([]byte, MaxRTPPacketSize)
	var (
		n   int
		err error
	)
	if secure != nil {
		secure.SetReadDeadline(time.Now().Add(timeout))
		n, err = secure.Read(buf)
	} else {
		s.conn.SetReadDeadline(time.Now().Add(timeout))
		n, _, err = s.conn.ReadFromUDP(buf)
	}
	if err != nil {
		return nil, errors.Wrap(err, "прием RTP")
	}
	if n < MinRTPPacketSize {
		return nil, fmt.Errorf("пакет слишком мал: %d байт", n)
	}

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(buf[:n]); err != nil {
		return nil, errors.Wrap(err, "демаршалинг RTP пакета")
	}
	if packet.Version != 2 {
		return nil, fmt.Errorf("неподдерживаемая версия RTP: %d", packet.Version)
	}
	s.received.Add(1)
	return packet, nil
}

func (s *RTPSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	secure := s.secure
	s.mu.Unlock()
	if secure != nil {
		secure.Close()
	}
	err := s.conn.Close()
	s.release()
	return err
}

func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
