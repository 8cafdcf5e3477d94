// Package stream implements the thin listener and client drivers that
// bootstrap channels onto TCP sockets and a reactor.Reactor (§4.6). Their
// own logic is deliberately minimal: bind/accept or connect, then hand off
// to channel.New.
package stream

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// resolveTCP4 parses a "host:port" address into a unix.SockaddrInet4. Only
// IPv4 is supported, matching the Non-goals in §1 (IPv6 is out of scope).
func resolveTCP4(address string) (unix.SockaddrInet4, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return unix.SockaddrInet4{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return unix.SockaddrInet4{}, fmt.Errorf("stream: invalid port %q: %w", portStr, err)
	}

	var ip net.IP
	if host == "" {
		ip = net.IPv4zero
	} else {
		ips, err := net.LookupIP(host)
		if err != nil {
			return unix.SockaddrInet4{}, err
		}
		for _, candidate := range ips {
			if v4 := candidate.To4(); v4 != nil {
				ip = v4
				break
			}
		}
		if ip == nil {
			return unix.SockaddrInet4{}, fmt.Errorf("stream: no IPv4 address found for %q", host)
		}
	}

	var sa unix.SockaddrInet4
	sa.Port = port
	copy(sa.Addr[:], ip.To4())
	return sa, nil
}
