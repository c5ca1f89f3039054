//go:build linux

package media

import (
	"net"

	"golang.org/x/sys/unix"
)

// setSockOptForVoice выставляет DSCP и приоритет сокета для голосового трафика.
// Ошибки setsockopt не критичны (контейнеры без CAP_NET_ADMIN).
func setSockOptForVoice(conn *net.UDPConn, dscp int) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	return rawConn.Control(func(fd uintptr) {
		// DSCP находится в старших 6 битах TOS
		tos := dscp << 2
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tos)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
	})
}
