package negotiator

import (
	"fmt"
	"time"

	"github.com/arzzra/h323phone/pkg/capability"
	"github.com/arzzra/h323phone/pkg/media"
)

// ChannelDirection направление потока с точки зрения локальной стороны.
type ChannelDirection int

const (
	// DirectionTransmitter локальная сторона передает
	DirectionTransmitter ChannelDirection = iota
	// DirectionReceiver локальная сторона принимает
	DirectionReceiver
)

func (d ChannelDirection) String() string {
	if d == DirectionReceiver {
		return "receiver"
	}
	return "transmitter"
}

// ChannelState состояние логического канала.
type ChannelState int

const (
	ChannelAwaitingEstablishment ChannelState = iota
	ChannelEstablished
	ChannelAwaitingRelease
	ChannelReleased
)

func (s ChannelState) String() string {
	switch s {
	case ChannelAwaitingEstablishment:
		return "AwaitingEstablishment"
	case ChannelEstablished:
		return "Established"
	case ChannelAwaitingRelease:
		return "AwaitingRelease"
	case ChannelReleased:
		return "Released"
	}
	return "Unknown"
}

// ChannelKey ключ канала: номер уникален в пределах стороны-инициатора.
type ChannelKey struct {
	Number     uint
	FromRemote bool
}

// LogicalChannel однонаправленный медиа поток.
type LogicalChannel struct {
	Number     uint
	FromRemote bool
	Direction  ChannelDirection
	SessionID  uint
	// Capability запись таблицы, описывающая формат: локальной для
	// принимаемых каналов, удаленной для передаваемых.
	Capability *capability.Capability
	State      ChannelState
	// FastStart канал открыт без обмена OpenLogicalChannel
	FastStart bool
	Paused    bool

	Media               media.Session
	LocalMediaAddress   string
	RemoteMediaAddress  string
	MediaControlAddress string

	CryptoSuite string
	// EncryptionKey ключ медиа из запроса или подтверждения открытия
	EncryptionKey []byte
	BitRateLimit  uint

	timer    timer
	OpenedAt time.Time
}

// Key ключ канала в словаре.
func (ch *LogicalChannel) Key() ChannelKey {
	return ChannelKey{Number: ch.Number, FromRemote: ch.FromRemote}
}

// IsOpen канал установлен и не закрывается.
func (ch *LogicalChannel) IsOpen() bool {
	return ch.State == ChannelEstablished
}

func (ch *LogicalChannel) String() string {
	format := "<none>"
	if ch.Capability != nil {
		format = ch.Capability.FormatName()
	}
	return fmt.Sprintf("LC#%d(%s, session=%d, %s, %s)", ch.Number, ch.Direction, ch.SessionID, format, ch.State)
}
