package media

import (
	"context"
	"net"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/pkg/errors"
)

// Secure выполняет рукопожатие DTLS-PSK с ключом, примененным через
// ApplyCryptoKey. После успеха пакеты передаются через защищенное
// соединение. Требует известного удаленного адреса.
func (s *RTPSession) Secure(ctx context.Context) error {
	s.mu.RLock()
	remote, key, suite, initiator, secure := s.remote, s.key, s.suite, s.initiator, s.secure
	s.mu.RUnlock()

	switch {
	case secure != nil:
		return nil
	case key == nil:
		return ErrNotSecured
	case remote == nil:
		return ErrNoRemoteAddress
	}

	timeout := s.cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config := &dtls.Config{
		PSK: func([]byte) ([]byte, error) {
			return key, nil
		},
		PSKIdentityHint:      []byte(suite),
		CipherSuites:         []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8},
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	}

	peer := &udpPeerConn{UDPConn: s.conn, remote: remote}
	var (
		conn *dtls.Conn
		err  error
	)
	if initiator {
		conn, err = dtls.ClientWithContext(ctx, peer, config)
	} else {
		conn, err = dtls.ServerWithContext(ctx, peer, config)
	}
	if err != nil {
		return errors.Wrapf(err, "сессия %d: рукопожатие DTLS", s.id)
	}

	s.mu.Lock()
	s.secure = conn
	s.mu.Unlock()
	return nil
}

// IsSecured true после успешного рукопожатия
func (s *RTPSession) IsSecured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secure != nil
}

// udpPeerConn представляет неподключенный UDP сокет как соединение с
// одним удаленным адресом. Датаграммы от других адресов отбрасываются.
type udpPeerConn struct {
	*net.UDPConn
	remote *net.UDPAddr
}

func (c *udpPeerConn) Read(b []byte) (int, error) {
	for {
		n, addr, err := c.UDPConn.ReadFromUDP(b)
		if err != nil {
			return n, err
		}
		if addr.IP.Equal(c.remote.IP) && addr.Port == c.remote.Port {
			return n, nil
		}
	}
}

func (c *udpPeerConn) Write(b []byte) (int, error) {
	return c.UDPConn.WriteToUDP(b, c.remote)
}

func (c *udpPeerConn) RemoteAddr() net.Addr {
	return c.remote
}
