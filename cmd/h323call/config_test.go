package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/h323phone/pkg/call"
)

const testSDP = "v=0\r\n" +
	"o=- 1 1 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"c=IN IP4 127.0.0.1\r\n" +
	"t=0 0\r\n" +
	"m=audio 4000 RTP/AVP 8 0 101\r\n" +
	"a=rtpmap:8 PCMA/8000\r\n" +
	"a=rtpmap:0 PCMU/8000\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n"

func TestApplyCapsSDP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caps.sdp")
	require.NoError(t, os.WriteFile(path, []byte(testSDP), 0o600))

	cfg := defaultAppConfig()
	cfg.CapsSDP = path
	require.NoError(t, applyCapsSDP(&cfg))
	assert.Equal(t, []string{"G.711-ALaw-64k", "G.711-uLaw-64k", "UserInput/RFC2833", "UserInput/dtmf"}, cfg.Call.Formats)
	assert.NoError(t, cfg.Call.Validate())

	cfg = defaultAppConfig()
	before := cfg.Call.Formats
	require.NoError(t, applyCapsSDP(&cfg))
	assert.Equal(t, before, cfg.Call.Formats, "без файла список не меняется")

	cfg.CapsSDP = filepath.Join(t.TempDir(), "missing.sdp")
	assert.Error(t, applyCapsSDP(&cfg))
}

func TestNewLogger(t *testing.T) {
	cfg := defaultAppConfig()
	for _, format := range []string{"text", "json", "JSON"} {
		cfg.LogFormat = format
		logger, err := newLogger(&cfg)
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}

	cfg.LogFormat = "xml"
	_, err := newLogger(&cfg)
	assert.Error(t, err)

	cfg.LogFormat = "text"
	cfg.LogLevel = "loud"
	_, err = newLogger(&cfg)
	assert.Error(t, err)
}

func TestTransportConfig(t *testing.T) {
	cfg := defaultAppConfig()
	tcfg, err := transportConfig(&cfg)
	require.NoError(t, err)
	assert.Nil(t, tcfg.TLS)

	cfg.TLS.Cert = filepath.Join(t.TempDir(), "cert.pem")
	cfg.TLS.Key = filepath.Join(t.TempDir(), "key.pem")
	_, err = transportConfig(&cfg)
	assert.Error(t, err)
}

func TestConsoleHandlerAnswer(t *testing.T) {
	h := newConsoleHandler(nil)
	assert.Equal(t, call.AnswerNow, h.OnAnswerCall(nil, "alice"))
}

func TestGatekeeperSection(t *testing.T) {
	g := gatekeeperConfig{
		Routes:       map[string]string{"bob": "10.0.0.2:1720"},
		StrictRoutes: true,
		Denied:       []string{"mallory"},
	}
	s := g.static()
	assert.Equal(t, g.Routes, s.Routes)
	assert.True(t, s.StrictRoutes)
	assert.Equal(t, []string{"mallory"}, s.Denied)
}
