// Package transport предоставляет надежные потоковые транспорты для
// каналов сигнализации и управления H.323. PDU разделяются заголовками
// TPKT (RFC 1006).
package transport

import (
	"context"
	"crypto/tls"
	"time"
)

// Transport двунаправленный транспорт PDU.
type Transport interface {
	// ReadPDU читает очередной PDU. По истечении timeout возвращает
	// ErrTimeout, транспорт при этом остается пригодным. Нулевой timeout
	// означает ожидание без ограничения.
	ReadPDU(timeout time.Duration) ([]byte, error)

	// WritePDU отправляет PDU целиком. Безопасен для конкурентного вызова.
	WritePDU(data []byte) error

	// Close закрывает транспорт. Повторный вызов ничего не делает.
	Close() error

	// IsClosed возвращает true после Close
	IsClosed() bool

	LocalAddr() string
	RemoteAddr() string
}

// Dialer устанавливает исходящие соединения.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// Listener принимает входящие соединения.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Addr() string
	Close() error
}

// Network источник соединений: исходящих и входящих.
type Network interface {
	Dialer
	Listen(addr string) (Listener, error)
}

// Config настройки потоковых транспортов
type Config struct {
	// DialTimeout ограничивает установку соединения
	DialTimeout time.Duration
	// WriteTimeout ограничивает запись одного PDU
	WriteTimeout time.Duration
	// KeepAlive период TCP keepalive, ноль отключает
	KeepAlive time.Duration
	// MaxPDUSize максимальный размер PDU без заголовка TPKT
	MaxPDUSize int
	// TLS включает TLS поверх TCP, если задан
	TLS *tls.Config
}

// DefaultConfig возвращает настройки транспорта по умолчанию
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		KeepAlive:    30 * time.Second,
		MaxPDUSize:   maxTPKTPayload,
	}
}
