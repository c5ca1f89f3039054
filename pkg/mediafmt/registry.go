package mediafmt

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Registry реестр форматов. Безопасен для конкурентного использования.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
	byName  map[string]int
}

// NewRegistry создает пустой реестр.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry возвращает общий реестр со стандартными форматами H.323.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, f := range standardFormats() {
			if err := defaultRegistry.Register(f); err != nil {
				panic(err)
			}
		}
	})
	return defaultRegistry
}

// Register добавляет формат. Повторная регистрация имени заменяет формат.
func (r *Registry) Register(f Format) error {
	if !f.IsValid() {
		return fmt.Errorf("некорректный формат %q", f.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(f.Name)
	if idx, ok := r.byName[key]; ok {
		r.formats[idx] = f
		return nil
	}
	r.byName[key] = len(r.formats)
	r.formats = append(r.formats, f)
	return nil
}

// Find ищет формат по точному имени (без учета регистра).
func (r *Registry) Find(name string) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Format{}, false
	}
	return r.formats[idx], true
}

// FindGlob возвращает все форматы, имя которых подходит под шаблон с '*'.
func (r *Registry) FindGlob(pattern string) []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Format
	for _, f := range r.formats {
		if MatchGlob(pattern, f.Name) {
			out = append(out, f)
		}
	}
	return out
}

// FindBySubType ищет формат по подтипу H.245. Пустой packetization
// совпадает с любым форматом данного подтипа.
func (r *Registry) FindBySubType(mt MediaType, subType, packetization string) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.formats {
		if f.MediaType != mt || f.H245SubType != subType {
			continue
		}
		if packetization != "" && f.Packetization != "" && !strings.EqualFold(packetization, f.Packetization) {
			continue
		}
		return f, true
	}
	return Format{}, false
}

// FindByEncoding ищет формат по имени кодировки RTP и частоте.
func (r *Registry) FindByEncoding(mt MediaType, encoding string, clockRate uint32) (Format, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.formats {
		if f.MediaType == mt && strings.EqualFold(f.EncodingName, encoding) &&
			(clockRate == 0 || f.ClockRate == clockRate) {
			return f, true
		}
	}
	return Format{}, false
}

// FindByPayloadType ищет формат по статическому payload type.
func (r *Registry) FindByPayloadType(mt MediaType, pt uint8) (Format, bool) {
	if pt >= 96 {
		return Format{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.formats {
		if f.MediaType == mt && f.PayloadType == pt && f.EncodingName != "" {
			return f, true
		}
	}
	return Format{}, false
}

// List возвращает копию всех форматов в порядке регистрации.
func (r *Registry) List() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, len(r.formats))
	copy(out, r.formats)
	return out
}

func standardFormats() []Format {
	const ms = time.Millisecond
	return []Format{
		{Name: "G.711-uLaw-64k", MediaType: MediaTypeAudio, EncodingName: "PCMU", PayloadType: 0, ClockRate: 8000, Channels: 1, FrameTime: ms, MaxFrames: 240, MaxBitRate: 640, H245SubType: "g711Ulaw64k"},
		{Name: "G.711-ALaw-64k", MediaType: MediaTypeAudio, EncodingName: "PCMA", PayloadType: 8, ClockRate: 8000, Channels: 1, FrameTime: ms, MaxFrames: 240, MaxBitRate: 640, H245SubType: "g711Alaw64k"},
		{Name: "G.722-64k", MediaType: MediaTypeAudio, EncodingName: "G722", PayloadType: 9, ClockRate: 8000, Channels: 1, FrameTime: ms, MaxFrames: 240, MaxBitRate: 640, H245SubType: "g722-64k"},
		{Name: "G.728", MediaType: MediaTypeAudio, EncodingName: "G728", PayloadType: 15, ClockRate: 8000, Channels: 1, FrameTime: 2500 * time.Microsecond, MaxFrames: 96, MaxBitRate: 160, H245SubType: "g728"},
		{Name: "G.729", MediaType: MediaTypeAudio, EncodingName: "G729", PayloadType: 18, ClockRate: 8000, Channels: 1, FrameTime: 10 * ms, MaxFrames: 24, MaxBitRate: 80, H245SubType: "g729"},
		{Name: "G.729A", MediaType: MediaTypeAudio, EncodingName: "G729", PayloadType: 18, ClockRate: 8000, Channels: 1, FrameTime: 10 * ms, MaxFrames: 24, MaxBitRate: 80, H245SubType: "g729AnnexA"},
		{Name: "G.723.1", MediaType: MediaTypeAudio, EncodingName: "G723", PayloadType: 4, ClockRate: 8000, Channels: 1, FrameTime: 30 * ms, MaxFrames: 8, MaxBitRate: 63, H245SubType: "g7231"},
		{Name: "GSM-06.10", MediaType: MediaTypeAudio, EncodingName: "GSM", PayloadType: 3, ClockRate: 8000, Channels: 1, FrameTime: 20 * ms, MaxFrames: 7, MaxBitRate: 132, H245SubType: "gsmFullRate"},
		{Name: "iLBC", MediaType: MediaTypeAudio, EncodingName: "iLBC", PayloadType: 97, ClockRate: 8000, Channels: 1, FrameTime: 30 * ms, MaxFrames: 8, MaxBitRate: 152, H245SubType: "genericAudioCapability", Packetization: "iLBC"},
		{Name: "H.261", MediaType: MediaTypeVideo, EncodingName: "H261", PayloadType: 31, ClockRate: 90000, MaxBitRate: 6210, H245SubType: "h261VideoCapability"},
		{Name: "H.263", MediaType: MediaTypeVideo, EncodingName: "H263", PayloadType: 34, ClockRate: 90000, MaxBitRate: 3270, H245SubType: "h263VideoCapability"},
		{Name: "H.264", MediaType: MediaTypeVideo, EncodingName: "H264", PayloadType: 96, ClockRate: 90000, MaxBitRate: 7680, H245SubType: "genericVideoCapability", Packetization: "RFC3984"},
		{Name: "T.38", MediaType: MediaTypeData, EncodingName: "t38", PayloadType: 100, ClockRate: 8000, MaxBitRate: 144, H245SubType: "t38fax"},
		{Name: "UserInput/basicString", MediaType: MediaTypeUserInput, H245SubType: "basicString"},
		{Name: "UserInput/dtmf", MediaType: MediaTypeUserInput, H245SubType: "dtmf"},
		{Name: "UserInput/RFC2833", MediaType: MediaTypeUserInput, EncodingName: "telephone-event", PayloadType: 101, ClockRate: 8000, H245SubType: "genericUserInputCapability", Packetization: "RFC2833"},
		{Name: "H.224", MediaType: MediaTypeData, EncodingName: "H224", PayloadType: 100, ClockRate: 4800, H245SubType: "h224"},
		{Name: "H.235-Media", MediaType: MediaTypeSecurity, H245SubType: "h235Media"},
		{Name: "FEC-RED", MediaType: MediaTypeFEC, EncodingName: "red", PayloadType: 121, ClockRate: 8000, H245SubType: "rfc2733"},
		{Name: "H.239-Control", MediaType: MediaTypeControl, H245SubType: "genericControlCapability", Packetization: "H.239"},
	}
}
