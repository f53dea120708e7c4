// Package emulator is an in-process stand-in for the power-supply bus,
// implementing transport.Stream directly instead of a real byte pipe.
// Modeled on original_source/src/emulator.rs: per-address device state
// (PV/MV/PC/MC/OUT/OVP/UVL/SN), a short processing delay before
// responding, and test hooks to force a device offline or raise an SRQ.
package emulator

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opencontrols/psgateway/addrconn"
	"github.com/opencontrols/psgateway/parser"
)

// ResponseDelay is the processing latency the emulator sleeps before
// placing a response in the read buffer, modeled on the original's
// `sleep(Duration::from_millis(100))` between receiving a line and
// replying but shortened to 20ms.
var ResponseDelay = 20 * time.Millisecond

type device struct {
	sn       string
	pv, mv   float64
	pc, mc   float64
	ovp, uvl float64
	out      int
	offline  bool
}

func newDevice(addr addrconn.Address) *device {
	return &device{sn: fmt.Sprintf("EMU-%d", addr), ovp: 30, uvl: 0}
}

// Emulator is a transport.Stream backed by an in-memory device set
// instead of a wire. One Emulator serves every address on its simulated
// bus, mirroring how a single real serial line is shared.
type Emulator struct {
	mu        sync.Mutex
	devices   map[addrconn.Address]*device
	addressed *addrconn.Address

	in  bytes.Buffer
	out bytes.Buffer

	notify   chan struct{}
	closed   chan struct{}
	deadline time.Time

	log *slog.Logger
}

// New builds an emulator with one device per addr in addrs.
func New(addrs []addrconn.Address, log *slog.Logger) *Emulator {
	if log == nil {
		log = slog.Default()
	}
	devices := make(map[addrconn.Address]*device, len(addrs))
	for _, a := range addrs {
		devices[a] = newDevice(a)
	}
	return &Emulator{
		devices: devices,
		notify:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
		log:     log,
	}
}

// SetOffline forces addr to stop responding to anything but ADR, or
// restores it, simulating a device power-cycling off the bus.
func (e *Emulator) SetOffline(addr addrconn.Address, offline bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.devices[addr]; ok {
		d.offline = offline
	}
}

// RaiseSRQ injects a spontaneous SRQ byte-pair for addr directly into the
// read stream, independent of any in-flight command/response exchange.
func (e *Emulator) RaiseSRQ(addr addrconn.Address) {
	b := byte(0x80 | byte(addr))
	e.mu.Lock()
	e.out.Write([]byte{b, b})
	e.mu.Unlock()
	e.wake()
}

func (e *Emulator) wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Write accepts command bytes; a complete "\r"-terminated line triggers
// asynchronous processing after ResponseDelay.
func (e *Emulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	e.in.Write(p)
	var lines []string
	for {
		b := e.in.Bytes()
		idx := bytes.IndexByte(b, '\r')
		if idx < 0 {
			break
		}
		lines = append(lines, string(b[:idx]))
		e.in.Next(idx + 1)
	}
	e.mu.Unlock()

	for _, line := range lines {
		line := line
		go func() {
			time.Sleep(ResponseDelay)
			e.process(line)
		}()
	}
	return len(p), nil
}

func (e *Emulator) process(line string) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "ADR" {
		if len(args) != 1 {
			e.log.Warn("emulator: malformed ADR", "line", line)
			return
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			e.log.Warn("emulator: malformed ADR address", "line", line)
			return
		}
		addr := addrconn.Address(n)
		if _, ok := e.devices[addr]; !ok {
			e.reply("ADDR")
			return
		}
		e.addressed = &addr
		e.reply("OK")
		return
	}

	if e.addressed == nil {
		e.log.Warn("emulator: command before ADR", "line", line)
		return
	}
	d, ok := e.devices[*e.addressed]
	if !ok || d.offline {
		return
	}

	switch name {
	case "IDN?":
		e.reply("TDK-Lambda Emulator")
	case "SN?":
		e.reply(d.sn)
	case "OUT":
		e.setBool(&d.out, args)
	case "OUT?":
		e.reply(parser.BoolSpellingFor(*e.addressed).Store(d.out))
	case "PV":
		e.setScalar(&d.pv, args)
		d.mv = d.pv
	case "PV?":
		e.reply(formatScalar(d.pv))
	case "MV?":
		e.reply(formatScalar(d.mv))
	case "PC":
		e.setScalar(&d.pc, args)
		d.mc = d.pc
	case "PC?":
		e.reply(formatScalar(d.pc))
	case "MC?":
		e.reply(formatScalar(d.mc))
	case "OVP":
		e.setScalar(&d.ovp, args)
	case "OVP?":
		e.reply(formatScalar(d.ovp))
	case "UVL":
		e.setScalar(&d.uvl, args)
	case "UVL?":
		e.reply(formatScalar(d.uvl))
	default:
		e.log.Warn("emulator: unknown command", "line", line)
	}
}

func (e *Emulator) setScalar(field *float64, args []string) {
	if len(args) != 1 {
		return
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return
	}
	*field = v
	e.reply("OK")
}

func (e *Emulator) setBool(field *int, args []string) {
	if len(args) != 1 {
		return
	}
	v, err := parser.BoolSpellingFor(*e.addressed).Load(args[0])
	if err != nil {
		return
	}
	*field = v
	e.reply("OK")
}

func formatScalar(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// reply must be called with e.mu held.
func (e *Emulator) reply(s string) {
	e.out.WriteString(s)
	e.out.WriteByte('\r')
	e.wake()
}

func (e *Emulator) Read(p []byte) (int, error) {
	for {
		e.mu.Lock()
		if e.out.Len() > 0 {
			n, _ := e.out.Read(p)
			e.mu.Unlock()
			return n, nil
		}
		deadline := e.deadline
		e.mu.Unlock()

		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if !deadline.IsZero() {
			d := time.Until(deadline)
			if d <= 0 {
				return 0, nil
			}
			timer = time.NewTimer(d)
			timeoutCh = timer.C
		}

		select {
		case <-e.notify:
			if timer != nil {
				timer.Stop()
			}
		case <-timeoutCh:
			return 0, nil
		case <-e.closed:
			if timer != nil {
				timer.Stop()
			}
			return 0, nil
		}
	}
}

// Flush discards whatever is currently buffered for read without
// waiting for more.
func (e *Emulator) Flush() error {
	e.mu.Lock()
	e.out.Reset()
	e.mu.Unlock()
	return nil
}

func (e *Emulator) SetReadDeadline(t time.Time) error {
	e.mu.Lock()
	e.deadline = t
	e.mu.Unlock()
	return nil
}

func (e *Emulator) Close() error {
	close(e.closed)
	return nil
}
