//go:build !linux

package main

import (
	"fmt"

	"github.com/opencontrols/psgateway/config"
	"github.com/opencontrols/psgateway/transport"
)

func openSerial(cfg config.Config) (transport.Stream, error) {
	return nil, fmt.Errorf("serial transport is only available on linux builds")
}
