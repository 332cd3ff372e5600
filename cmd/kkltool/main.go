// Command kkltool is the pflag-based command-line front end for the
// 911OT-KKL diagnostic core: one subcommand per client.Client operation,
// plus "demo" to force the simulator backend. Flag style is grounded on
// doismellburning-samoyed's cmd/direwolf/main.go (long GNU flags, a
// package-level usage() function).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/dbn-b4e/911OT-KKL/internal/client"
	"github.com/dbn-b4e/911OT-KKL/internal/config"
	"github.com/dbn-b4e/911OT-KKL/internal/faultdict"
	"github.com/dbn-b4e/911OT-KKL/internal/kline"
	"github.com/dbn-b4e/911OT-KKL/internal/kwp1281"
	"github.com/dbn-b4e/911OT-KKL/internal/measure"
	"github.com/dbn-b4e/911OT-KKL/internal/metrics"
	"github.com/dbn-b4e/911OT-KKL/internal/simulator"
)

var subcommands = []string{
	"connect", "faults", "clear-faults", "live", "value", "adc", "actuator",
	"group", "login", "adapt-read", "adapt-write", "demo",
}

func usage() {
	fmt.Fprintf(os.Stderr, "kkltool - KWP1281 diagnostic client for Porsche 964/993/965 ECUs.\n\n")
	fmt.Fprintf(os.Stderr, "Usage: kkltool <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n  %s\n\n", joinWithCommas(subcommands))
	fmt.Fprintf(os.Stderr, "Run 'kkltool <command> --help' for flags specific to a command.\n")
}

func joinWithCommas(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

// connFlags are the flags every non-demo command needs to reach an ECU,
// optionally defaulted from a --profile entry.
type connFlags struct {
	profile    *string
	configPath *string
	device     *string
	model      *string
	ecu        *string
	inverted   *bool
	metrics    *string
}

func registerConnFlags(fs *pflag.FlagSet) connFlags {
	return connFlags{
		profile:    fs.StringP("profile", "p", "", "Named connection profile from --config."),
		configPath: fs.String("config", "", "Path to a YAML profile file (see internal/config)."),
		device:     fs.StringP("device", "d", "", "Serial device path, e.g. /dev/ttyUSB0."),
		model:      fs.StringP("model", "m", "", "Vehicle model: 964, 993, or 965."),
		ecu:        fs.StringP("ecu", "e", "", "ECU name, e.g. \"Motronic M2.1\"."),
		inverted:   fs.Bool("inverted", true, "K-Line polarity is inverted (reference hardware default)."),
		metrics:    fs.String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9090)."),
	}
}

// resolve merges a loaded profile (if --profile/--config were given) with
// any flags explicitly set on the command line; explicit flags win.
func (c connFlags) resolve(fs *pflag.FlagSet) (config.Profile, error) {
	p := config.Profile{
		Device:   *c.device,
		Model:    *c.model,
		ECU:      *c.ecu,
		Inverted: *c.inverted,
	}
	if *c.profile != "" {
		if *c.configPath == "" {
			return p, fmt.Errorf("--profile requires --config")
		}
		f, err := config.Load(*c.configPath)
		if err != nil {
			return p, err
		}
		base, err := f.Resolve(*c.profile)
		if err != nil {
			return p, err
		}
		if !fs.Changed("device") {
			p.Device = base.Device
		}
		if !fs.Changed("model") {
			p.Model = base.Model
		}
		if !fs.Changed("ecu") {
			p.ECU = base.ECU
		}
		if !fs.Changed("inverted") {
			p.Inverted = base.Inverted
		}
		p.PINHi, p.PINLo, p.Workshop = base.PINHi, base.PINLo, base.Workshop
	}
	return p, nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "-h", "--help", "help":
		usage()
		return
	case "connect":
		err = runConnect(args)
	case "faults":
		err = runFaults(args)
	case "clear-faults":
		err = runClearFaults(args)
	case "live":
		err = runLive(args)
	case "value":
		err = runValue(args)
	case "adc":
		err = runADC(args)
	case "actuator":
		err = runActuator(args)
	case "group":
		err = runGroup(args)
	case "login":
		err = runLogin(args)
	case "adapt-read":
		err = runAdaptRead(args)
	case "adapt-write":
		err = runAdaptWrite(args)
	case "demo":
		err = runDemo(args)
	default:
		fmt.Fprintf(os.Stderr, "kkltool: unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "kkltool: %v\n", err)
		os.Exit(1)
	}
}

// newClient builds a connected client.Client from resolved connection
// parameters. demo forces the simulator regardless of --device.
func newClient(demo bool, p config.Profile, m *metrics.Metrics) (client.Client, string, error) {
	logger := log.Default()
	onLog := func(msg string) { logger.Debug(msg) }
	onState := func(s string) { logger.Info("state", "state", s) }

	dict, err := faultdict.Load()
	if err != nil {
		return nil, "", fmt.Errorf("load fault dictionary: %w", err)
	}

	var c client.Client
	if demo {
		c = simulator.New(dict, onLog, onState)
	} else {
		d := kwp1281.NewDriver(dict, onLog, onState)
		d.SetMetrics(m)
		c = d
	}

	ident, err := c.Connect(p.Device, p.Model, p.ECU, kline.Options{Inverted: p.Inverted})
	if err != nil {
		return nil, "", fmt.Errorf("connect: %w", err)
	}
	return c, ident, nil
}

// setupMetrics starts a Prometheus registry and, if addr is non-empty, an
// HTTP server exposing it at /metrics. Returns nil if addr is empty, so
// callers can pass the result straight to newClient.
func setupMetrics(addr string) *metrics.Metrics {
	if addr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Default().Error("metrics server stopped", "err", err)
		}
	}()
	return m
}

func runConnect(args []string) error {
	fs := pflag.NewFlagSet("connect", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, ident, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()
	fmt.Printf("Connected: %s\n", ident)
	return nil
}

func runDemo(args []string) error {
	fs := pflag.NewFlagSet("demo", pflag.ExitOnError)
	model := fs.StringP("model", "m", "993", "Vehicle model: 964, 993, or 965.")
	ecu := fs.StringP("ecu", "e", "Motronic M5.2", "ECU name.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, ident, err := newClient(true, config.Profile{Model: *model, ECU: *ecu}, nil)
	if err != nil {
		return err
	}
	defer c.Disconnect()
	fmt.Printf("[DEMO] Connected: %s\n", ident)

	faults, err := c.ReadFaults()
	if err != nil {
		return err
	}
	fmt.Printf("Faults: %d stored\n", len(faults))
	for _, f := range faults {
		fmt.Printf("  #%d (x%d): %s\n", f.Code, f.Count, f.Description)
	}

	for _, r := range c.ReadLiveValues() {
		fmt.Printf("  %-20s %s\n", r.Name, r.Formatted)
	}
	return nil
}

func runFaults(args []string) error {
	fs := pflag.NewFlagSet("faults", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	faults, err := c.ReadFaults()
	if err != nil {
		return err
	}
	if len(faults) == 0 {
		fmt.Println("No faults stored.")
		return nil
	}
	for _, f := range faults {
		fmt.Printf("#%d (x%d): %s\n", f.Code, f.Count, f.Description)
	}
	return nil
}

func runClearFaults(args []string) error {
	fs := pflag.NewFlagSet("clear-faults", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	ok, err := c.ClearFaults()
	if err != nil {
		return err
	}
	fmt.Printf("Clear faults: %v\n", ok)
	return nil
}

func runLive(args []string) error {
	fs := pflag.NewFlagSet("live", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	for _, r := range c.ReadLiveValues() {
		fmt.Printf("%-20s %-10s ratio=%.2f\n", r.Name, r.Formatted, r.Ratio)
	}
	return nil
}

func runValue(args []string) error {
	fs := pflag.NewFlagSet("value", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	register := fs.Uint8("register", 0x3A, "Value-request register.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	v, err := c.ReadValue(*register)
	if err != nil {
		return err
	}
	if v == nil {
		fmt.Println("No response (timeout).")
		return nil
	}
	if name, _, unit, formatted, ok := measure.ConvertValue(p.Model, *register, *v); ok {
		fmt.Printf("Register 0x%02X (%s): %s %s\n", *register, name, formatted, unit)
		return nil
	}
	fmt.Printf("Register 0x%02X: %d\n", *register, *v)
	return nil
}

func runADC(args []string) error {
	fs := pflag.NewFlagSet("adc", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	channel := fs.Uint8("channel", 1, "ADC channel.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	v, err := c.ReadADC(*channel)
	if err != nil {
		return err
	}
	if v == nil {
		fmt.Println("No response (timeout).")
		return nil
	}
	if name, _, unit, formatted, ok := measure.ConvertADC(p.Model, *channel, byte(*v)); ok {
		fmt.Printf("ADC channel %d (%s): %s %s\n", *channel, name, formatted, unit)
		return nil
	}
	fmt.Printf("ADC channel %d: %d\n", *channel, *v)
	return nil
}

func runActuator(args []string) error {
	fs := pflag.NewFlagSet("actuator", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	num := fs.Uint8("num", 1, "Actuator test number.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	ok, err := c.ActuatorTest(*num)
	if err != nil {
		return err
	}
	fmt.Printf("Actuator %d (%s): %v\n", *num, kwp1281.ActuatorName(int(*num)), ok)
	return nil
}

func runGroup(args []string) error {
	fs := pflag.NewFlagSet("group", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	group := fs.Uint8("group", 1, "Read-group number.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	values, err := c.ReadGroup(*group)
	if err != nil {
		return err
	}
	for _, v := range values {
		if v.Name != "" {
			fmt.Printf("formula=%d %-24s %s\n", v.FormulaID, v.Name, v.Formatted)
			continue
		}
		fmt.Printf("formula=%d a=%d b=%d\n", v.FormulaID, v.A, v.B)
	}
	return nil
}

func runLogin(args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	pinHi := fs.Uint8("pin-hi", 0, "PIN high byte.")
	pinLo := fs.Uint8("pin-lo", 0, "PIN low byte.")
	workshop := fs.Uint8("workshop", 0, "Workshop code byte.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	hi, lo, ws := *pinHi, *pinLo, *workshop
	if p.PINHi != 0 || p.PINLo != 0 {
		if !fs.Changed("pin-hi") {
			hi = p.PINHi
		}
		if !fs.Changed("pin-lo") {
			lo = p.PINLo
		}
		if !fs.Changed("workshop") {
			ws = p.Workshop
		}
	}

	ok, err := c.Login(hi, lo, ws)
	if err != nil {
		return err
	}
	fmt.Printf("Login: %v\n", ok)
	return nil
}

func runAdaptRead(args []string) error {
	fs := pflag.NewFlagSet("adapt-read", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	channel := fs.Uint8("channel", 1, "Adaptation channel.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	v, err := c.ReadAdaptation(*channel)
	if err != nil {
		return err
	}
	if v == nil {
		fmt.Println("No response (timeout).")
		return nil
	}
	fmt.Printf("Adaptation channel %d: %d\n", v.Channel, v.Value)
	return nil
}

func runAdaptWrite(args []string) error {
	fs := pflag.NewFlagSet("adapt-write", pflag.ExitOnError)
	cf := registerConnFlags(fs)
	channel := fs.Uint8("channel", 1, "Adaptation channel.")
	value := fs.Uint16("value", 0, "16-bit value to write.")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := cf.resolve(fs)
	if err != nil {
		return err
	}
	c, _, err := newClient(false, p, setupMetrics(*cf.metrics))
	if err != nil {
		return err
	}
	defer c.Disconnect()

	ok, err := c.WriteAdaptation(*channel, *value)
	if err != nil {
		return err
	}
	fmt.Printf("Write adaptation: %v\n", ok)
	return nil
}
