// Package media предоставляет медиа сессии для логических каналов вызова.
// Одна сессия обслуживает оба направления потока с данным номером сессии.
package media

import (
	"errors"

	"github.com/arzzra/h323phone/pkg/mediafmt"
)

var (
	// ErrSessionClosed операция над закрытой сессией
	ErrSessionClosed = errors.New("медиа сессия закрыта")
	// ErrNoRemoteAddress удаленный адрес еще не известен
	ErrNoRemoteAddress = errors.New("удаленный адрес не установлен")
	// ErrNotSecured ключ шифрования не применен
	ErrNotSecured = errors.New("ключ шифрования не применен")
)

// Session медиа сессия одного номера сессии.
type Session interface {
	ID() uint
	MediaType() mediafmt.MediaType
	// LocalAddress адрес приема медиа, сообщаемый удаленной стороне
	LocalAddress() string
	// Open начинает передачу на удаленный адрес
	Open(remoteAddr string) error
	// ApplyCryptoKey применяет согласованный криптонабор и ключ.
	// initiator определяет роль в рукопожатии.
	ApplyCryptoKey(suite string, key []byte, initiator bool) error
	// SetPaused приостанавливает или возобновляет передачу
	SetPaused(paused bool)
	IsPaused() bool
	Close() error
}

// SessionFactory выдает сессии в пределах одного вызова.
type SessionFactory interface {
	// UseSession возвращает сессию с данным номером, создавая ее при
	// первом обращении.
	UseSession(id uint, mediaType mediafmt.MediaType) (Session, error)
	// ReserveAddress резервирует адрес приема сессии, не создавая ее.
	// UseSession с тем же номером принимает на этом адресе.
	ReserveAddress(id uint) (string, error)
	// ReleaseSession закрывает сессию и освобождает ее ресурсы
	ReleaseSession(id uint)
	// Close закрывает все сессии
	Close() error
}
