// Package capability реализует таблицу возможностей H.245: записи
// возможностей, дескрипторы одновременных наборов, слияние удаленного
// набора и проверку допустимых комбинаций.
package capability

import (
	"fmt"
	"slices"
	"strings"

	"github.com/arzzra/h323phone/pkg/h245"
	"github.com/arzzra/h323phone/pkg/mediafmt"
)

// MainType основной тип возможности.
type MainType int

const (
	MainTypeAudio MainType = iota
	MainTypeVideo
	MainTypeData
	MainTypeUserInput
	MainTypeGenericControl
	MainTypeSecurity
	MainTypeFEC
)

func (t MainType) String() string {
	if ops, ok := kinds[t]; ok {
		return ops.wireName
	}
	return fmt.Sprintf("MainType(%d)", int(t))
}

// ParseMainType разбирает имя основного типа из представления протокола.
func ParseMainType(name string) (MainType, bool) {
	for t, ops := range kinds {
		if ops.wireName == name {
			return t, true
		}
	}
	return 0, false
}

// Direction направление возможности.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionReceive
	DirectionTransmit
	DirectionReceiveAndTransmit
	DirectionNone
)

func (d Direction) String() string {
	switch d {
	case DirectionReceive:
		return h245.DirectionReceive
	case DirectionTransmit:
		return h245.DirectionTransmit
	case DirectionReceiveAndTransmit:
		return h245.DirectionReceiveAndTransmit
	case DirectionNone:
		return "none"
	}
	return "unknown"
}

func parseDirection(s string) Direction {
	switch s {
	case h245.DirectionReceive:
		return DirectionReceive
	case h245.DirectionTransmit:
		return DirectionTransmit
	case h245.DirectionReceiveAndTransmit:
		return DirectionReceiveAndTransmit
	}
	return DirectionUnknown
}

// kindOps поведение, зависящее от основного типа. Новый вид возможности
// добавляется новой записью в kinds.
type kindOps struct {
	wireName  string
	mediaType mediafmt.MediaType
	matches   func(a, b *Capability) bool
}

var kinds = map[MainType]kindOps{
	MainTypeAudio:          {wireName: "audio", mediaType: mediafmt.MediaTypeAudio, matches: matchSubType},
	MainTypeVideo:          {wireName: "video", mediaType: mediafmt.MediaTypeVideo, matches: matchSubType},
	MainTypeData:           {wireName: "data", mediaType: mediafmt.MediaTypeData, matches: matchSubType},
	MainTypeUserInput:      {wireName: "userInput", mediaType: mediafmt.MediaTypeUserInput, matches: matchSubType},
	MainTypeGenericControl: {wireName: "genericControl", mediaType: mediafmt.MediaTypeControl, matches: matchSubType},
	MainTypeSecurity:       {wireName: "h235Security", mediaType: mediafmt.MediaTypeSecurity, matches: matchSecurity},
	MainTypeFEC:            {wireName: "fec", mediaType: mediafmt.MediaTypeFEC, matches: matchSubType},
}

func mainTypeFor(mt mediafmt.MediaType) (MainType, bool) {
	for t, ops := range kinds {
		if ops.mediaType == mt {
			return t, true
		}
	}
	return 0, false
}

func matchSubType(a, b *Capability) bool {
	if a.subType != b.subType {
		return false
	}
	if a.packetization != "" && b.packetization != "" {
		return strings.EqualFold(a.packetization, b.packetization)
	}
	return true
}

func matchSecurity(a, b *Capability) bool {
	if !matchSubType(a, b) {
		return false
	}
	if len(a.cryptoSuites) == 0 || len(b.cryptoSuites) == 0 {
		return true
	}
	for _, s := range a.cryptoSuites {
		if slices.Contains(b.cryptoSuites, s) {
			return true
		}
	}
	return false
}

// Capability запись таблицы возможностей. После добавления в таблицу
// изменяется только выбранный криптонабор.
type Capability struct {
	number        uint
	mainType      MainType
	subType       string
	direction     Direction
	format        mediafmt.Format
	packetization string
	maxFrames     uint
	cryptoSuites  []string
	selectedSuite string
}

// FromFormat создает возможность для зарегистрированного формата.
func FromFormat(f mediafmt.Format, dir Direction) (*Capability, error) {
	mt, ok := mainTypeFor(f.MediaType)
	if !ok {
		return nil, fmt.Errorf("формат %s: тип медиа %q не поддерживается", f.Name, f.MediaType)
	}
	return &Capability{
		mainType:      mt,
		subType:       f.H245SubType,
		direction:     dir,
		format:        f,
		packetization: f.Packetization,
		maxFrames:     f.MaxFrames,
	}, nil
}

// WithCryptoSuites возвращает копию возможности с поддерживаемыми криптонаборами.
func (c *Capability) WithCryptoSuites(suites ...string) *Capability {
	cp := c.Clone()
	cp.cryptoSuites = append([]string(nil), suites...)
	return cp
}

// FromWire восстанавливает возможность из записи протокола. Возвращает
// false, если подтип неизвестен реестру: такие записи отбрасываются.
func FromWire(r *mediafmt.Registry, e h245.CapabilityEntry) (*Capability, bool) {
	mt, ok := ParseMainType(e.MainType)
	if !ok {
		return nil, false
	}
	f, ok := r.FindBySubType(kinds[mt].mediaType, e.SubType, e.Packetization)
	if !ok {
		return nil, false
	}
	c := &Capability{
		number:        e.Number,
		mainType:      mt,
		subType:       e.SubType,
		direction:     parseDirection(e.Direction),
		format:        f,
		packetization: e.Packetization,
		maxFrames:     e.MaxFrames,
		cryptoSuites:  append([]string(nil), e.CryptoSuites...),
	}
	if c.maxFrames == 0 {
		c.maxFrames = f.MaxFrames
	}
	return c, true
}

// ToWire кодирует возможность в запись протокола.
func (c *Capability) ToWire() h245.CapabilityEntry {
	e := h245.CapabilityEntry{
		Number:        c.number,
		MainType:      c.mainType.String(),
		SubType:       c.subType,
		Packetization: c.packetization,
		MaxFrames:     c.maxFrames,
		MaxBitRate:    c.format.MaxBitRate,
		CryptoSuites:  append([]string(nil), c.cryptoSuites...),
	}
	if c.direction != DirectionUnknown && c.direction != DirectionNone {
		e.Direction = c.direction.String()
	}
	return e
}

func (c *Capability) Number() uint                { return c.number }
func (c *Capability) MainType() MainType          { return c.mainType }
func (c *Capability) SubType() string             { return c.subType }
func (c *Capability) Direction() Direction        { return c.direction }
func (c *Capability) Format() mediafmt.Format     { return c.format }
func (c *Capability) FormatName() string          { return c.format.Name }
func (c *Capability) Packetization() string       { return c.packetization }
func (c *Capability) MaxFrames() uint             { return c.maxFrames }
func (c *Capability) CryptoSuites() []string      { return append([]string(nil), c.cryptoSuites...) }
func (c *Capability) SelectedCryptoSuite() string { return c.selectedSuite }

// DefaultSessionID номер медиа сессии для возможности, ноль если сессии нет.
func (c *Capability) DefaultSessionID() uint {
	return c.format.DefaultSessionID()
}

// Matches сравнивает возможности без учета номера и направления.
func (c *Capability) Matches(other *Capability) bool {
	if c == nil || other == nil || c.mainType != other.mainType {
		return false
	}
	ops, ok := kinds[c.mainType]
	if !ok {
		return false
	}
	return ops.matches(c, other)
}

// MatchesWire сравнивает возможность с записью протокола.
func (c *Capability) MatchesWire(e h245.CapabilityEntry) bool {
	mt, ok := ParseMainType(e.MainType)
	if !ok || mt != c.mainType {
		return false
	}
	other := &Capability{mainType: mt, subType: e.SubType, packetization: e.Packetization, cryptoSuites: e.CryptoSuites}
	return kinds[mt].matches(c, other)
}

// SelectCryptoSuite выбирает первый криптонабор локальной возможности,
// который поддерживает удаленная сторона, и запоминает выбор.
func (c *Capability) SelectCryptoSuite(remote *Capability) (string, bool) {
	for _, s := range c.cryptoSuites {
		if remote == nil || slices.Contains(remote.cryptoSuites, s) {
			c.selectedSuite = s
			return s, true
		}
	}
	return "", false
}

// Clone возвращает независимую копию.
func (c *Capability) Clone() *Capability {
	cp := *c
	cp.cryptoSuites = append([]string(nil), c.cryptoSuites...)
	return &cp
}

func (c *Capability) String() string {
	return fmt.Sprintf("%s#%d<%s>", c.format.Name, c.number, c.direction)
}
