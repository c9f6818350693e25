package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/oshokin/tripwire/internal/logger"
)

const (
	// AutoHost asks ResolveEndpoints to derive the host from the local address.
	AutoHost = "auto"

	// derivedLastOctet replaces the last octet of the local IPv4 address.
	derivedLastOctet = 242

	// routeProbeAddress is only used to select the outbound interface; nothing is sent.
	routeProbeAddress = "192.0.2.1:9"
)

var (
	errNoIPv4      = errors.New("no usable IPv4 address on this machine")
	errIPv6Derived = errors.New("IPv6 local address cannot be used to derive an endpoint")
)

// LocalIPv4Func reports the machine's primary IPv4 address.
type LocalIPv4Func func() (net.IP, error)

// Endpoint selects the endpoints ResolveEndpoints looks at.
type Endpoint uint8

const (
	// EndpointButton is the flicd host of the button monitor.
	EndpointButton Endpoint = 1 << iota
	// EndpointRemote is the relay address of the remote and heartbeat monitors.
	EndpointRemote
)

// ResolveEndpoints derives the selected endpoint hosts from the primary local
// address when they are not usable as configured. The button host must be an
// IPv4 literal; the remote host only falls back when it is "auto" or not a
// syntactically valid host name or IP. Each substitution is logged as a
// warning because the result is only a guess.
func (c *Config) ResolveEndpoints(ctx context.Context, targets Endpoint) error {
	return c.resolveEndpoints(ctx, targets, PrimaryIPv4)
}

func (c *Config) resolveEndpoints(ctx context.Context, targets Endpoint, local LocalIPv4Func) error {
	var errs []error

	if targets&EndpointButton != 0 {
		errs = append(errs, c.resolveButtonHost(ctx, local))
	}

	if targets&EndpointRemote != 0 {
		errs = append(errs, c.resolveRemoteAddress(ctx, local))
	}

	return errors.Join(errs...)
}

func (c *Config) resolveButtonHost(ctx context.Context, local LocalIPv4Func) error {
	if isIPv4(c.Button.Host) {
		return nil
	}

	host, err := DeriveHost(local)
	if err != nil {
		return fmt.Errorf("auto-detect button host: %w", err)
	}

	logger.WarnKV(ctx, "Button daemon host auto-detected, degraded-confidence configuration",
		"configured", c.Button.Host, "derived", host)

	c.Button.Host = host

	return nil
}

func (c *Config) resolveRemoteAddress(ctx context.Context, local LocalIPv4Func) error {
	host, port, err := net.SplitHostPort(c.Remote.Address)
	if err != nil {
		// Without a port there is nothing to derive; Remote.Validate reports it.
		return nil //nolint:nilerr // The remote monitor alone degrades on a bad address.
	}

	if host != AutoHost && isHost(host) {
		return nil
	}

	derived, err := DeriveHost(local)
	if err != nil {
		return fmt.Errorf("auto-detect remote endpoint: %w", err)
	}

	c.Remote.Address = net.JoinHostPort(derived, port)

	logger.WarnKV(ctx, "Remote control endpoint auto-detected, degraded-confidence configuration",
		"configured", host, "derived", c.Remote.Address)

	return nil
}

// Address returns the flicd host:port.
func (b Button) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// DeriveHost returns the local IPv4 address with its last octet replaced.
func DeriveHost(local LocalIPv4Func) (string, error) {
	ip, err := local()
	if err != nil {
		return "", err
	}

	v4 := ip.To4()
	if v4 == nil {
		return "", errIPv6Derived
	}

	derived := make(net.IP, net.IPv4len)
	copy(derived, v4)
	derived[3] = derivedLastOctet

	return derived.String(), nil
}

// PrimaryIPv4 finds the address of the interface used for outbound traffic,
// falling back to the first non-loopback IPv4 interface address.
func PrimaryIPv4() (net.IP, error) {
	if conn, err := net.Dial("udp4", routeProbeAddress); err == nil {
		defer func() {
			_ = conn.Close()
		}()

		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP.To4() != nil && !addr.IP.IsLoopback() {
			return addr.IP.To4(), nil
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("list interface addresses: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}

		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}

	return nil, errNoIPv4
}

// isHost reports whether host is an IP literal or an RFC 1123 host name.
func isHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}

	return validate.Var(host, "required,hostname_rfc1123") == nil
}

func isIPv4(host string) bool {
	ip := net.ParseIP(host)

	return ip != nil && ip.To4() != nil
}
