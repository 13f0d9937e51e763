// Package config manages goprotos run configuration using koanf/v2.
//
// Values are layered: built-in defaults, an optional YAML file, GOPROTOS_
// environment variables, then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete goprotos configuration.
type Config struct {
	Target    TargetConfig    `koanf:"target"`
	Suite     SuiteConfig     `koanf:"suite"`
	Transport TransportConfig `koanf:"transport"`
	Dump      DumpConfig      `koanf:"dump"`
	DNS       DNSConfig       `koanf:"dns"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Report    ReportConfig    `koanf:"report"`
}

// TargetConfig describes the SIP endpoint under test and the local identity.
type TargetConfig struct {
	// ToURI is the recipient URI, [user[:pass]@]host[:port]. Required.
	ToURI string `koanf:"to_uri"`

	// FromURI is the initiator URI. Empty derives it from the local
	// interface address.
	FromURI string `koanf:"from_uri"`

	// SendTo overrides the host datagrams are sent to.
	SendTo string `koanf:"send_to"`

	// DstPort overrides the destination port. Zero uses the to_uri port.
	DstPort uint16 `koanf:"dst_port"`

	// LocalPort is the port of the shared receiving socket. Zero uses the
	// from_uri port.
	LocalPort uint16 `koanf:"local_port"`

	// BindAddr is the IPv4 address of the receiving socket (empty = all).
	BindAddr string `koanf:"bind_addr"`
}

// SuiteConfig selects and sequences test cases.
type SuiteConfig struct {
	// Dir holds the 7-digit named test case files.
	Dir string `koanf:"dir"`

	// File runs one external test case instead of the directory.
	File string `koanf:"file"`

	// Single runs one index. -1 disables it.
	Single int `koanf:"single"`

	Start int `koanf:"start"`

	// Stop ends the inclusive range. -1 means the last index found.
	Stop int `koanf:"stop"`

	// Delay is the pause between test cases.
	Delay time.Duration `koanf:"delay"`

	Teardown bool `koanf:"teardown"`
	Validate bool `koanf:"validate"`
	FailFast bool `koanf:"fail_fast"`
}

// TransportConfig holds UDP exchange parameters.
type TransportConfig struct {
	// ReplyWait bounds every request/response exchange.
	ReplyWait time.Duration `koanf:"reply_wait"`

	// MaxPDUSize caps outbound payloads and the receive buffer. Longer
	// payloads are truncated on purpose.
	MaxPDUSize int `koanf:"max_pdu_size"`
}

// DumpConfig controls PDU dumps.
type DumpConfig struct {
	ShowSent  bool `koanf:"show_sent"`
	ShowReply bool `koanf:"show_reply"`

	// PCAP is a pcap file path receiving every sent and received PDU.
	PCAP string `koanf:"pcap"`
}

// DNSConfig selects how hostnames are resolved.
type DNSConfig struct {
	// NameServer queries this server directly (host or host:port). Empty
	// uses the system resolver.
	NameServer string `koanf:"nameserver"`

	Timeout time.Duration `koanf:"timeout"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json", "text", "console" or "dev".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address (e.g., ":9100"). Empty disables it.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// ReportConfig selects the run report.
type ReportConfig struct {
	// Format is "text", "json" or "yaml".
	Format string `koanf:"format"`
	// Output is a file path; empty writes to stdout.
	Output string `koanf:"output"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// Defaults shared with the command-line layer.
const (
	DefaultDelay      = 100 * time.Millisecond
	DefaultReplyWait  = 100 * time.Millisecond
	DefaultMaxPDUSize = 65507
	DefaultDir        = "testcases"
	Unset             = -1
)

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Suite: SuiteConfig{
			Dir:    DefaultDir,
			Single: Unset,
			Start:  0,
			Stop:   Unset,
			Delay:  DefaultDelay,
		},
		Transport: TransportConfig{
			ReplyWait:  DefaultReplyWait,
			MaxPDUSize: DefaultMaxPDUSize,
		},
		DNS: DNSConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Report: ReportConfig{
			Format: "text",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for goprotos configuration.
// Variables are named GOPROTOS_<section>_<key>, e.g., GOPROTOS_TARGET_TO_URI.
const envPrefix = "GOPROTOS_"

// Load merges, in increasing precedence: DefaultConfig(), the YAML file at
// path (skipped when path is empty), GOPROTOS_ environment variables and
// overrides (koanf keys such as "suite.start", typically set from CLI flags).
//
// Environment variable mapping splits the section at the first underscore:
//
//	GOPROTOS_TARGET_TO_URI        -> target.to_uri
//	GOPROTOS_TRANSPORT_REPLY_WAIT -> transport.reply_wait
//	GOPROTOS_LOG_LEVEL            -> log.level
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := setAll(k, defaultMap(DefaultConfig())); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	if err := setAll(k, overrides); err != nil {
		return nil, fmt.Errorf("apply overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOPROTOS_TARGET_TO_URI -> target.to_uri.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

func defaultMap(d *Config) map[string]any {
	return map[string]any{
		"suite.dir":              d.Suite.Dir,
		"suite.single":           d.Suite.Single,
		"suite.start":            d.Suite.Start,
		"suite.stop":             d.Suite.Stop,
		"suite.delay":            d.Suite.Delay.String(),
		"transport.reply_wait":   d.Transport.ReplyWait.String(),
		"transport.max_pdu_size": d.Transport.MaxPDUSize,
		"dns.timeout":            d.DNS.Timeout.String(),
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"metrics.path":           d.Metrics.Path,
		"report.format":          d.Report.Format,
	}
}

func setAll(k *koanf.Koanf, values map[string]any) error {
	for key, val := range values {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrMissingToURI indicates no recipient URI was configured.
	ErrMissingToURI = errors.New("target.to_uri must not be empty")

	// ErrInvalidBindAddr indicates target.bind_addr is not an IPv4 address.
	ErrInvalidBindAddr = errors.New("target.bind_addr must be an IPv4 address")

	// ErrInvalidRange indicates an unusable start/stop/single combination.
	ErrInvalidRange = errors.New("suite range is invalid")

	// ErrInvalidDelay indicates a negative inter-test delay.
	ErrInvalidDelay = errors.New("suite.delay must be >= 0")

	// ErrInvalidReplyWait indicates a non-positive reply-wait.
	ErrInvalidReplyWait = errors.New("transport.reply_wait must be > 0")

	// ErrInvalidMaxPDUSize indicates a PDU size outside 1..65507.
	ErrInvalidMaxPDUSize = errors.New("transport.max_pdu_size must be within 1..65507")

	// ErrInvalidLogFormat indicates an unrecognized log format.
	ErrInvalidLogFormat = errors.New("log.format must be json, text, console or dev")

	// ErrInvalidReportFormat indicates an unrecognized report format.
	ErrInvalidReportFormat = errors.New("report.format must be text, json or yaml")
)

// ValidLogFormats lists the recognized log.format values.
var ValidLogFormats = map[string]bool{
	"json":    true,
	"text":    true,
	"console": true,
	"dev":     true,
}

// ValidReportFormats lists the recognized report.format values.
var ValidReportFormats = map[string]bool{
	"text": true,
	"json": true,
	"yaml": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Target.ToURI == "" {
		return ErrMissingToURI
	}

	if _, err := cfg.BindAddr(); err != nil {
		return err
	}

	if err := validateSuite(cfg.Suite); err != nil {
		return err
	}

	if cfg.Transport.ReplyWait <= 0 {
		return ErrInvalidReplyWait
	}

	if cfg.Transport.MaxPDUSize < 1 || cfg.Transport.MaxPDUSize > DefaultMaxPDUSize {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxPDUSize, cfg.Transport.MaxPDUSize)
	}

	if !ValidLogFormats[cfg.Log.Format] {
		return fmt.Errorf("%w: got %q", ErrInvalidLogFormat, cfg.Log.Format)
	}

	if !ValidReportFormats[cfg.Report.Format] {
		return fmt.Errorf("%w: got %q", ErrInvalidReportFormat, cfg.Report.Format)
	}

	return nil
}

func validateSuite(sc SuiteConfig) error {
	if sc.Delay < 0 {
		return ErrInvalidDelay
	}

	if sc.File != "" {
		return nil
	}

	if sc.Single < Unset {
		return fmt.Errorf("%w: single %d", ErrInvalidRange, sc.Single)
	}

	if sc.Start < 0 {
		return fmt.Errorf("%w: start %d", ErrInvalidRange, sc.Start)
	}

	if sc.Stop != Unset && sc.Single == Unset && sc.Stop < sc.Start {
		return fmt.Errorf("%w: stop %d before start %d", ErrInvalidRange, sc.Stop, sc.Start)
	}

	return nil
}

// BindAddr parses Target.BindAddr. Empty yields the zero Addr.
func (c *Config) BindAddr() (netip.Addr, error) {
	if c.Target.BindAddr == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(c.Target.BindAddr)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidBindAddr, c.Target.BindAddr)
	}
	return addr, nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
