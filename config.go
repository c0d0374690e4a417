package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/robertof/go-flextrack/ble"
	"github.com/robertof/go-flextrack/collector"
	"github.com/robertof/go-flextrack/device"
	"github.com/robertof/go-flextrack/plan"
	"github.com/robertof/go-flextrack/session"
	"gopkg.in/yaml.v3"
)

type config struct {
	Debug bool `yaml:"debug"`
	Trace bool `yaml:"trace"`

	BindAddress     string `yaml:"bind"`
	DiscoverDevices bool   `yaml:"-"`
	ConfigFile      string `yaml:"-"`

	BluetoothDeviceId   int            `yaml:"bluetooth_device"`
	BluetoothConnParams ble.ConnParams `yaml:"bluetooth_connection_params"`

	// Target is a device spec: a bare name or `name=...,addr=...`.
	Target              string `yaml:"target"`
	Service             string `yaml:"service"`
	Characteristics     string `yaml:"characteristics"`
	WriteCharacteristic string `yaml:"write_characteristic"`

	ScanDuration      time.Duration `yaml:"scan_duration"`
	ScanTimeout       time.Duration `yaml:"scan_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	MaxRescans        int           `yaml:"max_rescans"`
	Backoff           time.Duration `yaml:"backoff"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ValueMaxAge       time.Duration `yaml:"value_max_age"`
}

func defaultConfig() config {
	opts := session.DefaultOptions()

	return config{
		BindAddress:         "localhost:9103",
		BluetoothConnParams: ble.ConnParamsDefault,
		Target:              "FlexTrackIoT",
		Service:             fmt.Sprintf("%04x", plan.DefaultService),
		Characteristics: fmt.Sprintf("x=%04x,y=%04x,z=%04x",
			plan.DefaultCharX, plan.DefaultCharY, plan.DefaultCharZ),
		ScanDuration:      ble.DefaultScanWindow,
		ScanTimeout:       0,
		ConnectTimeout:    opts.ConnectTimeout,
		MaxRescans:        opts.MaxRescans,
		Backoff:           opts.Backoff,
		ReconnectInterval: collector.DefaultReconnectInterval,
		ValueMaxAge:       time.Minute,
	}
}

func bindFlags(fs *flag.FlagSet, cfg *config) {
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file; flags given explicitly take precedence")
	fs.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "Where the metrics endpoint binds to (empty to disable)")
	fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", cfg.BluetoothDeviceId, "Bluetooth (HCI) device ID")
	fs.Var(&cfg.BluetoothConnParams, "bluetooth-connection-params",
		"Bluetooth connection parameters (one of 'default', 'power-saving' or 'low-latency')")
	fs.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
	fs.StringVar(&cfg.Target, "target", cfg.Target,
		"Device to connect to: a name, or a spec in the form of `name=...,addr=...`")
	fs.StringVar(&cfg.Service, "service", cfg.Service, "GATT service UUID (short or full form)")
	fs.StringVar(&cfg.Characteristics, "characteristics", cfg.Characteristics,
		"Characteristics to subscribe to, as `channel=uuid,...`")
	fs.StringVar(&cfg.WriteCharacteristic, "write-characteristic", cfg.WriteCharacteristic,
		"Characteristic written by send (defaults to the first subscribed one)")
	fs.DurationVar(&cfg.ScanDuration, "scan-duration", cfg.ScanDuration, "Length of a single scan")
	fs.DurationVar(&cfg.ScanTimeout, "scan-timeout", cfg.ScanTimeout,
		"Bound on the whole scanning phase, rescans included (0 to disable)")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout,
		"Bound on connecting and subscribing")
	fs.IntVar(&cfg.MaxRescans, "max-rescans", cfg.MaxRescans,
		"Rescans allowed while scans come back empty (negative to disable)")
	fs.DurationVar(&cfg.Backoff, "backoff", cfg.Backoff, "Exponential backoff factor for rescans")
	fs.DurationVar(&cfg.ReconnectInterval, "reconnect-interval", cfg.ReconnectInterval,
		"Delay before reconnecting after the session was lost")
	fs.DurationVar(&cfg.ValueMaxAge, "value-max-age", cfg.ValueMaxAge,
		"Stop exporting a channel when its last value is older than this (0 to keep forever)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logs")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Enable trace logs")
}

// parseArgs applies defaults, then the config file named by -config, then the
// command line.
func parseArgs(fs *flag.FlagSet, args []string) (config, error) {
	cfg := defaultConfig()
	bindFlags(fs, &cfg)

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.ConfigFile != "" {
		if err := cfg.load(cfg.ConfigFile); err != nil {
			return cfg, err
		}

		// parse again so that explicit flags win over the file.
		if err := fs.Parse(args); err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

func (c *config) load(path string) error {
	data, err := os.ReadFile(path)

	if err != nil {
		return errors.Wrap(err, "reading config file")
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(err, "parsing config file")
	}

	return nil
}

func (c *config) Validate() error {
	if _, err := c.Plan(); err != nil {
		return err
	}

	if !c.DiscoverDevices && c.TargetSpec().Name() == "" && c.TargetSpec().Addr() == "" {
		return errors.New("target must not be empty")
	}

	if c.ScanDuration <= 0 {
		return errors.New("scan-duration must be > 0")
	}

	return nil
}

func (c *config) TargetSpec() device.DeviceSpec {
	return device.NewDeviceSpec(c.Target)
}

func (c *config) Plan() (*plan.Plan, error) {
	service, err := plan.ParseUUID(c.Service)
	if err != nil {
		return nil, errors.Wrap(err, "service")
	}

	entries, err := plan.ParseEntries(c.Characteristics)
	if err != nil {
		return nil, errors.Wrap(err, "characteristics")
	}

	var opts []plan.Option

	if c.WriteCharacteristic != "" {
		u, err := plan.ParseUUID(c.WriteCharacteristic)
		if err != nil {
			return nil, errors.Wrap(err, "write characteristic")
		}

		opts = append(opts, plan.WithWriteCharacteristic(u))
	}

	return plan.Build(service, entries, opts...)
}

// SessionOptions maps the command line onto session.Options. Zero means
// "disabled" on the command line, while session.Options treats it as "default".
func (c *config) SessionOptions() session.Options {
	opts := session.Options{
		MaxRescans:     c.MaxRescans,
		Backoff:        c.Backoff,
		ScanTimeout:    c.ScanTimeout,
		ConnectTimeout: c.ConnectTimeout,
	}

	if opts.MaxRescans == 0 {
		opts.MaxRescans = -1
	}

	if opts.ScanTimeout == 0 {
		opts.ScanTimeout = -1
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = -1
	}

	if opts.Backoff == 0 {
		opts.Backoff = -1
	}

	return opts
}

func ParseArgs() config {
	cfg, err := parseArgs(flag.CommandLine, os.Args[1:])

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	return cfg
}
