//go:build !linux

package media

import "net"

func setSockOptForVoice(conn *net.UDPConn, dscp int) error {
	return nil
}
