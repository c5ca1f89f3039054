package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout истек таймаут чтения, транспорт пригоден к дальнейшему использованию
	ErrTimeout = errors.New("таймаут чтения")

	// ErrClosed транспорт закрыт локально или удаленной стороной
	ErrClosed = errors.New("транспорт закрыт")

	// ErrInvalidFrame нарушен формат заголовка TPKT
	ErrInvalidFrame = errors.New("некорректный заголовок TPKT")

	// ErrFrameTooLarge PDU превышает допустимый размер
	ErrFrameTooLarge = errors.New("PDU слишком велик")

	// ErrUnknownAddress адрес не зарегистрирован в сети
	ErrUnknownAddress = errors.New("адрес недоступен")
)

// TransportError ошибка операции транспорта
type TransportError struct {
	Transport string
	Operation string
	Addr      string
	Err       error
}

func (e *TransportError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Transport, e.Operation, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// isTimeout проверяет, является ли ошибка таймаутом
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
