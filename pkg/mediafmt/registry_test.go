package mediafmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"G.711-uLaw-64k", "g.711-ulaw-64k", true},
		{"G.711*", "G.711-ALaw-64k", true},
		{"*ulaw*", "G.711-uLaw-64k", true},
		{"*-64k", "G.722-64k", true},
		{"G.7*9", "G.729", true},
		{"G.7*9", "G.729A", false},
		{"a*a", "a", false},
		{"*", "anything", true},
		{"H.26*", "G.711-uLaw-64k", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchGlob(tt.pattern, tt.name))
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	r := DefaultRegistry()

	f, ok := r.Find("g.711-ulaw-64k")
	require.True(t, ok, "PCMU должен быть зарегистрирован")
	assert.Equal(t, "PCMU", f.EncodingName)
	assert.Equal(t, uint(1), f.DefaultSessionID())

	f, ok = r.FindBySubType(MediaTypeVideo, "genericVideoCapability", "RFC3984")
	require.True(t, ok)
	assert.Equal(t, "H.264", f.Name)

	_, ok = r.FindBySubType(MediaTypeAudio, "nonStandard", "")
	assert.False(t, ok, "неизвестный подтип не должен находиться")

	assert.Len(t, r.FindGlob("G.711*"), 2)
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Format{Name: "X", MediaType: MediaTypeAudio, H245SubType: "x", ClockRate: 8000}))
	require.NoError(t, r.Register(Format{Name: "x", MediaType: MediaTypeAudio, H245SubType: "x", ClockRate: 16000}))
	assert.Len(t, r.List(), 1)

	f, _ := r.Find("X")
	assert.Equal(t, uint32(16000), f.ClockRate)

	assert.Error(t, r.Register(Format{Name: "bad"}))
}

func TestFormatsFromSDP(t *testing.T) {
	raw := "v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"c=IN IP4 127.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 8 0 101 120\r\n" +
		"a=rtpmap:8 PCMA/8000\r\n" +
		"a=rtpmap:101 telephone-event/8000\r\n" +
		"a=rtpmap:120 opus/48000/2\r\n"

	formats, err := FormatsFromSDP(DefaultRegistry(), []byte(raw))
	require.NoError(t, err)

	var names []string
	for _, f := range formats {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"G.711-ALaw-64k", "G.711-uLaw-64k", "UserInput/RFC2833"}, names)

	_, err = FormatsFromSDP(DefaultRegistry(), []byte("garbage"))
	assert.Error(t, err)
}
