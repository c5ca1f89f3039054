package mediafmt

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// FormatsFromSDP разбирает SDP описание и возвращает известные реестру
// форматы в порядке их появления. Неизвестные кодеки пропускаются.
func FormatsFromSDP(r *Registry, raw []byte) ([]Format, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(raw); err != nil {
		return nil, errors.Wrap(err, "разбор SDP")
	}

	var out []Format
	seen := make(map[string]bool)
	for _, md := range desc.MediaDescriptions {
		mt := MediaType(md.MediaName.Media)
		rtpmaps := make(map[string]string)
		for _, attr := range md.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			parts := strings.SplitN(attr.Value, " ", 2)
			if len(parts) == 2 {
				rtpmaps[parts[0]] = parts[1]
			}
		}

		for _, pt := range md.MediaName.Formats {
			f, ok := lookupSDPFormat(r, mt, pt, rtpmaps[pt])
			if !ok || seen[f.Name] {
				continue
			}
			seen[f.Name] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func lookupSDPFormat(r *Registry, mt MediaType, pt, rtpmap string) (Format, bool) {
	if rtpmap != "" {
		parts := strings.Split(rtpmap, "/")
		var clock uint32
		if len(parts) > 1 {
			if v, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
				clock = uint32(v)
			}
		}
		encoding := parts[0]
		if strings.EqualFold(encoding, "telephone-event") {
			mt = MediaTypeUserInput
		}
		if f, ok := r.FindByEncoding(mt, encoding, clock); ok {
			return f, true
		}
	}
	n, err := strconv.Atoi(pt)
	if err != nil || n < 0 || n > 127 {
		return Format{}, false
	}
	return r.FindByPayloadType(mt, uint8(n))
}
