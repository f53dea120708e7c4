// Package config loads the gateway's JSON configuration file, in the
// style of jangala-dev-devicecode-go's types/config.go: a plain
// JSON-tagged struct tree decoded with encoding/json, no config
// library.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opencontrols/psgateway/addrconn"
)

// DefaultAddresses is the address set used when a config file doesn't
// override it, per spec.md §6's "0..=6 by default".
var DefaultAddresses = []addrconn.Address{0, 1, 2, 3, 4, 5, 6}

// Transport selects which transport/ backend the daemon dials.
type Transport string

const (
	TransportSerial   Transport = "serial"
	TransportTCP      Transport = "tcp"
	TransportEmulator Transport = "emulator"
)

// Config is the gateway's full process configuration.
type Config struct {
	Transport Transport `json:"transport"`

	// SerialDevice and SerialBaud configure the transport/serial backend.
	SerialDevice string `json:"serialDevice,omitempty"`
	SerialBaud   int    `json:"serialBaud,omitempty"`

	// TCPAddr configures the transport/tcpline backend, "host:port".
	TCPAddr string `json:"tcpAddr,omitempty"`

	// Addresses overrides DefaultAddresses when non-empty.
	Addresses []addrconn.Address `json:"addresses,omitempty"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `json:"logLevel,omitempty"`
}

// Default returns a Config with spec.md §6's documented defaults.
func Default() Config {
	return Config{
		Transport:  TransportEmulator,
		SerialBaud: 9600,
		LogLevel:   "info",
	}
}

// Load reads and decodes the JSON config file at path, starting from
// Default() so a partial file only overrides what it mentions.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %q: %w", path, err)
	}
	return cfg, nil
}

// AddressesOrDefault returns c.Addresses if set, otherwise DefaultAddresses.
func (c Config) AddressesOrDefault() []addrconn.Address {
	if len(c.Addresses) > 0 {
		return c.Addresses
	}
	return DefaultAddresses
}

// VariableNames returns the PS<addr>:<field> interface-variable names
// spec.md §6 says the registry must present for addr, in the order the
// gateway expects to Take them.
func VariableNames(addr addrconn.Address) []string {
	prefix := fmt.Sprintf("PS%d:", addr)
	fields := []string{
		"ser_numb",
		"out_ena",
		"volt_real",
		"curr_real",
		"over_volt_set_point",
		"under_volt_set_point",
		"volt_set",
		"curr_set",
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = prefix + f
	}
	return names
}
