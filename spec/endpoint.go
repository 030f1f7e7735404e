package spec

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is a concrete TCP address: the upstream server the proxy
// forwards to, or the address it listens on.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns the endpoint in host:port form suitable for net.Dial.
func (ep Endpoint) Addr() string {
	return net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
}

func (ep Endpoint) String() string {
	return ep.Addr()
}

// ParseEndpoint parses a host:port address. The host may be empty in
// listen addresses (all interfaces) but not in dial targets; callers
// decide which they hold.
func ParseEndpoint(addr string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: invalid port %q", addr, portStr)
	}
	return Endpoint{Host: host, Port: port}, nil
}
