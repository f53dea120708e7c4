// Command psgatewayd runs the power-supply bus gateway: it owns the
// serial bus, binds each configured address's device-side variables to
// its interface-side variables, and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/opencontrols/psgateway/addrconn"
	"github.com/opencontrols/psgateway/binding"
	"github.com/opencontrols/psgateway/bus"
	"github.com/opencontrols/psgateway/config"
	"github.com/opencontrols/psgateway/devvar"
	"github.com/opencontrols/psgateway/ifacevar"
	"github.com/opencontrols/psgateway/line"
	"github.com/opencontrols/psgateway/logging"
	"github.com/opencontrols/psgateway/parser"
	"github.com/opencontrols/psgateway/sched"
	"github.com/opencontrols/psgateway/supervisor"
	"github.com/opencontrols/psgateway/transport"
	"github.com/opencontrols/psgateway/transport/emulator"
	"github.com/opencontrols/psgateway/transport/tcpline"
)

type options struct {
	ConfigPath   string `short:"c" long:"config" description:"path to JSON config file"`
	Transport    string `long:"transport" description:"override transport: serial, tcp, or emulator"`
	SerialDevice string `long:"serial-device" description:"serial device path"`
	SerialBaud   int    `long:"serial-baud" description:"serial baud rate"`
	TCPAddr      string `long:"tcp-addr" description:"TCP serial-bridge address, host:port"`
	LogLevel     string `long:"log-level" description:"debug, info, warn, or error"`
	Debug        bool   `long:"debug" description:"also mirror logs to stderr regardless of level"`
}

func main() {
	opts := options{}
	flagParser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := flagParser.Parse(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	applyOverrides(&cfg, opts)

	log := logging.New(os.Stdout, logLevel(cfg.LogLevel), opts.Debug)

	stream, err := openTransport(cfg, cfg.AddressesOrDefault(), log)
	if err != nil {
		log.Error("failed to open transport", "err", err)
		os.Exit(1)
	}
	defer stream.Close()

	if err := run(cfg, stream, log); err != nil {
		log.Error("gateway exited with error", "err", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config, opts options) {
	if opts.Transport != "" {
		cfg.Transport = config.Transport(opts.Transport)
	}
	if opts.SerialDevice != "" {
		cfg.SerialDevice = opts.SerialDevice
	}
	if opts.SerialBaud != 0 {
		cfg.SerialBaud = opts.SerialBaud
	}
	if opts.TCPAddr != "" {
		cfg.TCPAddr = opts.TCPAddr
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openTransport(cfg config.Config, addrs []addrconn.Address, log *slog.Logger) (transport.Stream, error) {
	switch cfg.Transport {
	case config.TransportTCP:
		return tcpline.Dial(cfg.TCPAddr)
	case config.TransportSerial:
		return openSerial(cfg)
	default:
		return emulator.New(addrs, log), nil
	}
}

// run wires the multiplexer, per-address supervisors and bindings, and
// blocks until SIGINT/SIGTERM.
func run(cfg config.Config, stream transport.Stream, log *slog.Logger) error {
	addrs := cfg.AddressesOrDefault()

	lineConn := line.New(stream, line.DefaultTiming, log, 16)
	addrConn := addrconn.New(lineConn, log)
	scheduler := sched.New(addrs)
	mux := bus.New(addrConn, scheduler, lineConn.SRQ(), log)

	registry := staticRegistryFor(addrs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, addr := range addrs {
		handle, ok := mux.AddClient(addr)
		if !ok {
			return fmt.Errorf("duplicate address %d in configuration", addr)
		}
		sup := supervisor.New(handle, log)
		go sup.Run(ctx.Done())

		cmdr := bus.NewCommander(handle)
		if err := wireDevice(ctx, addr, cmdr, sup.Gate(), registry, log); err != nil {
			return fmt.Errorf("wiring address %d: %w", addr, err)
		}
	}

	if residue := registry.Residual(); len(residue) > 0 {
		return fmt.Errorf("unclaimed interface variables: %v", residue)
	}

	go mux.Run(ctx.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}

func staticRegistryFor(addrs []addrconn.Address) *ifacevar.StaticRegistry {
	var outputs, inputs []string
	for _, addr := range addrs {
		names := config.VariableNames(addr)
		// names: ser_numb, out_ena, volt_real, curr_real,
		// over_volt_set_point, under_volt_set_point, volt_set, curr_set
		inputs = append(inputs, names[0], names[2], names[3])
		outputs = append(outputs, names[1], names[4], names[5], names[6], names[7])
	}
	return ifacevar.NewStaticRegistry(outputs, inputs)
}

// wireDevice builds every binding for addr and starts each on its own
// goroutine under ctx.
func wireDevice(ctx context.Context, addr addrconn.Address, cmdr bus.Commander, gate *supervisor.Gate, registry ifacevar.Registry, log *slog.Logger) error {
	names := config.VariableNames(addr)
	serNumb, outEna, voltReal, currReal, ovsp, uvsp, voltSet, currSet :=
		names[0], names[1], names[2], names[3], names[4], names[5], names[6], names[7]

	boolSpelling := parser.BoolSpellingFor(addr)

	serNumbIface, err := takeString(registry, serNumb)
	if err != nil {
		return err
	}
	go (&binding.InitOnly[string]{
		Name:   serNumb,
		Device: devvar.New(cmdr, "SN", parser.Identity{}),
		Iface:  serNumbIface,
		Gate:   gate,
		Log:    log,
	}).Run(ctx)

	voltRealIface, err := takeFloat(registry, voltReal)
	if err != nil {
		return err
	}
	go (&binding.Input[float64]{
		Name:   voltReal,
		Device: devvar.New(cmdr, "MV", parser.Numeric{}),
		Iface:  voltRealIface,
		Gate:   gate,
		Cmdr:   cmdr,
		Log:    log,
	}).Run(ctx)

	currRealIface, err := takeFloat(registry, currReal)
	if err != nil {
		return err
	}
	go (&binding.Input[float64]{
		Name:   currReal,
		Device: devvar.New(cmdr, "MC", parser.Numeric{}),
		Iface:  currRealIface,
		Gate:   gate,
		Cmdr:   cmdr,
		Log:    log,
	}).Run(ctx)

	outEnaIface, err := takeInt(registry, outEna)
	if err != nil {
		return err
	}
	go (&binding.Output[int]{
		Name:   outEna,
		Device: devvar.New(cmdr, "OUT", boolSpelling),
		Iface:  outEnaIface,
		Gate:   gate,
		Log:    log,
	}).Run(ctx)

	voltSetIface, err := takeFloat(registry, voltSet)
	if err != nil {
		return err
	}
	go (&binding.Output[float64]{
		Name:   voltSet,
		Device: devvar.New(cmdr, "PV", parser.Numeric{}),
		Iface:  voltSetIface,
		Gate:   gate,
		Log:    log,
	}).Run(ctx)

	currSetIface, err := takeFloat(registry, currSet)
	if err != nil {
		return err
	}
	go (&binding.Output[float64]{
		Name:   currSet,
		Device: devvar.New(cmdr, "PC", parser.Numeric{}),
		Iface:  currSetIface,
		Gate:   gate,
		Log:    log,
	}).Run(ctx)

	ovspIface, err := takeFloat(registry, ovsp)
	if err != nil {
		return err
	}
	go (&binding.Output[float64]{
		Name:   ovsp,
		Device: devvar.New(cmdr, "OVP", parser.Numeric{}),
		Iface:  ovspIface,
		Gate:   gate,
		Log:    log,
	}).Run(ctx)

	uvspIface, err := takeFloat(registry, uvsp)
	if err != nil {
		return err
	}
	go (&binding.Output[float64]{
		Name:   uvsp,
		Device: devvar.New(cmdr, "UVL", parser.Numeric{}),
		Iface:  uvspIface,
		Gate:   gate,
		Log:    log,
	}).Run(ctx)

	return nil
}

func takeFloat(registry ifacevar.Registry, name string) (*ifacevar.Var[float64], error) {
	v, ok := registry.Take(name)
	if !ok {
		return nil, fmt.Errorf("interface variable %q not present in registry", name)
	}
	return ifacevar.New(v, ifacevar.ScalarAdapter{}), nil
}

func takeInt(registry ifacevar.Registry, name string) (*ifacevar.Var[int], error) {
	v, ok := registry.Take(name)
	if !ok {
		return nil, fmt.Errorf("interface variable %q not present in registry", name)
	}
	return ifacevar.New(v, ifacevar.IntScalarAdapter{}), nil
}

func takeString(registry ifacevar.Registry, name string) (*ifacevar.Var[string], error) {
	v, ok := registry.Take(name)
	if !ok {
		return nil, fmt.Errorf("interface variable %q not present in registry", name)
	}
	return ifacevar.New(v, ifacevar.BytesAdapter{}), nil
}
