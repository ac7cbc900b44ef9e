package telemetry

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

type NodeID struct {
	Namespace uint16
	Name      string
}

func (n NodeID) String() string {
	return fmt.Sprintf("ns=%d;s=%s", n.Namespace, n.Name)
}

// Node names published by the plant server.
const (
	NodeCTAHFlow     = "ctah_branch_mass_flowrate"
	NodePumpPressure = "ctah_pump_pressure"
	NodeCalcTime     = "calculation_time"
	NodeHeaterFlow   = "heater_branch_flowrate"
	NodeInletTemp    = "bt11_temperature_degC"
	NodeHeaterPower  = "heater_power_kilowatts"
	NodeOutletTemp   = "bt12_temperature_degC"
	NodeHeaterValve  = "heater_branch_valve_open"
	NodeDHXValve     = "dhx_branch_valve_open"
	NodeCTAHValve    = "ctah_branch_valve_open"
)

// Positions of each variable in the read batch.
const (
	IdxCTAHFlow = iota
	IdxPumpPressure
	IdxCalcTime
	IdxHeaterFlow
	IdxInletTemp
	IdxHeaterPower
	IdxOutletTemp
	IdxHeaterValve
	IdxDHXValve
	IdxCTAHValve
	readCount
)

var readNames = [readCount]string{
	IdxCTAHFlow:     NodeCTAHFlow,
	IdxPumpPressure: NodePumpPressure,
	IdxCalcTime:     NodeCalcTime,
	IdxHeaterFlow:   NodeHeaterFlow,
	IdxInletTemp:    NodeInletTemp,
	IdxHeaterPower:  NodeHeaterPower,
	IdxOutletTemp:   NodeOutletTemp,
	IdxHeaterValve:  NodeHeaterValve,
	IdxDHXValve:     NodeDHXValve,
	IdxCTAHValve:    NodeCTAHValve,
}

// ReadList returns the read batch in index order.
func ReadList(ns uint16) []NodeID {
	out := make([]NodeID, readCount)
	for i, name := range readNames {
		out[i] = NodeID{Namespace: ns, Name: name}
	}
	return out
}

// WriteList returns the actuator variables, in write order.
func WriteList(ns uint16) []NodeID {
	return []NodeID{
		{Namespace: ns, Name: NodePumpPressure},
		{Namespace: ns, Name: NodeInletTemp},
		{Namespace: ns, Name: NodeHeaterPower},
	}
}

// Endpoint builds opc.tcp://host:port/path. host may be an IPv4/IPv6
// literal or a DNS name.
func Endpoint(host string, port int, path string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrEndpoint)
	}
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("%w: port %d", ErrEndpoint, port)
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip == nil && !validHostname(host) {
		return "", fmt.Errorf("%w: host %q", ErrEndpoint, host)
	}
	u := url.URL{
		Scheme: "opc.tcp",
		Host:   net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port)),
		Path:   "/" + strings.TrimPrefix(path, "/"),
	}
	return u.String(), nil
}

func validHostname(h string) bool {
	if len(h) > 253 {
		return false
	}
	labels := strings.Split(h, ".")
	if _, err := strconv.Atoi(labels[len(labels)-1]); err == nil {
		// dotted digits that failed ParseIP, e.g. 10.0.0.999
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// LocalAddress returns the first non-loopback IPv4 address of this machine,
// or 127.0.0.1.
func LocalAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && !ipn.IP.IsLoopback() {
			if v4 := ipn.IP.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return "127.0.0.1"
}
