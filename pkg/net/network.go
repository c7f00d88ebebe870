// Package network finds the local addresses that devices and control
// points on the network can reach this host on.
package network

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/jackpal/gateway"
)

var ErrNoAddress = errors.New("no usable address")

// HostAddresses returns the IPv4 addresses of all interfaces that are up,
// loopback addresses last.
func HostAddresses() ([]netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs, loopback []netip.Addr
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagUp == 0 {
			continue
		}
		for _, a := range interfaceIPv4(&ifaces[i]) {
			if a.IsLoopback() {
				loopback = append(loopback, a)
			} else {
				addrs = append(addrs, a)
			}
		}
	}
	return append(addrs, loopback...), nil
}

// InterfaceAddr returns the first IPv4 address of ifi.
func InterfaceAddr(ifi *net.Interface) (netip.Addr, error) {
	addrs := interfaceIPv4(ifi)
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w on interface %s", ErrNoAddress, ifi.Name)
	}
	return addrs[0], nil
}

func interfaceIPv4(ifi *net.Interface) []netip.Addr {
	ifaceAddrs, err := ifi.Addrs()
	if err != nil {
		return nil
	}
	var addrs []netip.Addr
	for _, a := range ifaceAddrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		if addr := prefix.Addr(); addr.Is4() {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// SourceIP returns the local address used to reach target. No packet is
// sent.
func SourceIP(target net.Addr) (netip.Addr, error) {
	host, _, err := net.SplitHostPort(target.String())
	if err != nil {
		host = target.String()
	}
	conn, err := net.Dial("udp", net.JoinHostPort(host, "1900"))
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()

	ap, err := netip.ParseAddrPort(conn.LocalAddr().String())
	if err != nil {
		return netip.Addr{}, err
	}
	return ap.Addr().Unmap(), nil
}

// PreferredAddress is the address used to reach the default gateway. If
// there is none, it is the first non loopback address of HostAddresses.
func PreferredAddress() (netip.Addr, error) {
	if gw, err := gateway.DiscoverGateway(); err == nil {
		if a, err := SourceIP(&net.UDPAddr{IP: gw}); err == nil {
			return a, nil
		}
	}

	addrs, err := HostAddresses()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		if !a.IsLoopback() {
			return a, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0], nil
	}
	return netip.Addr{}, ErrNoAddress
}
