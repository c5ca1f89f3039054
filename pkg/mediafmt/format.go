// Package mediafmt содержит реестр медиа форматов, которые могут быть
// представлены как возможности H.245.
package mediafmt

import (
	"fmt"
	"time"
)

// MediaType тип медиа потока формата
type MediaType string

const (
	MediaTypeAudio     MediaType = "audio"
	MediaTypeVideo     MediaType = "video"
	MediaTypeData      MediaType = "data"
	MediaTypeUserInput MediaType = "userinput"
	MediaTypeControl   MediaType = "control"
	MediaTypeSecurity  MediaType = "security"
	MediaTypeFEC       MediaType = "fec"
)

// Format описывает медиа формат (кодек) и его отображение на подтип H.245.
type Format struct {
	// Name уникальное имя формата в реестре, например "G.711-uLaw-64k"
	Name string
	// MediaType тип медиа
	MediaType MediaType
	// EncodingName имя кодировки в SDP/RTP, например "PCMU"
	EncodingName string
	// PayloadType статический или предпочтительный RTP payload type
	PayloadType uint8
	ClockRate   uint32
	Channels    uint8
	// FrameTime длительность одного кадра для аудио
	FrameTime time.Duration
	// MaxFrames максимальное число кадров в пакете
	MaxFrames uint
	// MaxBitRate в единицах 100 бит/с как в H.245
	MaxBitRate uint
	// H245SubType имя варианта в описании возможности H.245
	H245SubType string
	// Packetization дополнительный дискриминатор для generic и RTP-упакованных форматов
	Packetization string
}

// IsValid проверяет, что формат пригоден для регистрации.
func (f Format) IsValid() bool {
	return f.Name != "" && f.MediaType != "" && f.H245SubType != ""
}

// DefaultSessionID возвращает номер сессии по умолчанию для типа медиа
// (аудио 1, видео 2, данные 3). Ноль означает отсутствие сессии.
func (f Format) DefaultSessionID() uint {
	switch f.MediaType {
	case MediaTypeAudio:
		return 1
	case MediaTypeVideo:
		return 2
	case MediaTypeData:
		return 3
	}
	return 0
}

func (f Format) String() string {
	if f.EncodingName == "" {
		return f.Name
	}
	return fmt.Sprintf("%s(%s/%d)", f.Name, f.EncodingName, f.ClockRate)
}
