//go:build linux

package main

import (
	"github.com/opencontrols/psgateway/config"
	"github.com/opencontrols/psgateway/transport"
	"github.com/opencontrols/psgateway/transport/serial"
)

func openSerial(cfg config.Config) (transport.Stream, error) {
	return serial.Open(serial.Config{
		Device: cfg.SerialDevice,
		Baud:   cfg.SerialBaud,
	})
}
