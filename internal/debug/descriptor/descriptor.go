// Package descriptor builds the short human-readable label of a debug session.
package descriptor

import (
	"net"
	"strings"
)

// Placeholder stands in for a connection parameter that was not supplied.
const Placeholder = "?"

// Well-known connection parameter keys. Lookups are case-insensitive, so
// "HOST" and "host" name the same parameter.
const (
	KeyHost = "host"
	KeyPort = "port"
	KeyPID  = "pid"
	KeyURL  = "url"
)

// Descriptor pairs a display name with an address.
type Descriptor struct {
	// Name is the display name. It may be empty.
	Name string `json:"name"`

	// Address is the backend address, e.g. "localhost:5005".
	Address string `json:"address"`
}

// String returns "name (address)", or just the address when there is no name.
func (d Descriptor) String() string {
	switch {
	case d.Name == "":
		return d.Address
	case d.Address == "":
		return d.Name
	default:
		return d.Name + " (" + d.Address + ")"
	}
}

// Lookup returns the value for key, matching keys case-insensitively.
func Lookup(params map[string]string, key string) (string, bool) {
	if v, ok := params[key]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// HostPort builds a descriptor whose address is "host:port". A missing part
// is rendered as Placeholder; when both are missing the address is empty.
func HostPort(name string, params map[string]string) Descriptor {
	host, hasHost := Lookup(params, KeyHost)
	port, hasPort := Lookup(params, KeyPort)
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	hasHost = hasHost && host != ""
	hasPort = hasPort && port != ""

	if !hasHost && !hasPort {
		return Descriptor{Name: name}
	}
	if !hasHost {
		host = Placeholder
	}
	if !hasPort {
		port = Placeholder
	}
	return Descriptor{Name: name, Address: net.JoinHostPort(host, port)}
}
