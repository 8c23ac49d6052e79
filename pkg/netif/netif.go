// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package netif resolves a network interface name to the address the
// inbound listener binds to.
package netif

import (
	"errors"
	"fmt"
	"net"

	gnet "github.com/shirou/gopsutil/v3/net"
)

var (
	// ErrUnknownInterface is returned when no interface has the given name.
	ErrUnknownInterface = errors.New("unknown network interface")

	// ErrNoIPv4 is returned when the interface has no IPv4 address.
	ErrNoIPv4 = errors.New("interface has no IPv4 address")
)

// Resolve returns the first IPv4 address of the named interface.
func Resolve(name string) (string, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}
	return resolve(ifaces, name)
}

// Names lists the interfaces that carry an IPv4 address.
func Names() ([]string, error) {
	ifaces, err := gnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	var names []string
	for _, iface := range ifaces {
		if _, ok := firstIPv4(iface.Addrs); ok {
			names = append(names, iface.Name)
		}
	}
	return names, nil
}

func resolve(ifaces gnet.InterfaceStatList, name string) (string, error) {
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		if addr, ok := firstIPv4(iface.Addrs); ok {
			return addr, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoIPv4, name)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownInterface, name)
}

// firstIPv4 picks the first IPv4 entry. gopsutil reports addresses in CIDR
// form; bare addresses are accepted as well.
func firstIPv4(addrs gnet.InterfaceAddrList) (string, bool) {
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a.Addr)
		if err != nil {
			ip = net.ParseIP(a.Addr)
		}
		if ip == nil {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), true
		}
	}
	return "", false
}
