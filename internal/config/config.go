package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds every parameter of the tripwire binaries.
// It is built once by Load and then passed by value to the components.
type Config struct {
	// LogLevel is the minimum zap level name (debug, info, warn, error).
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// StateFile is where the last trigger record is written.
	StateFile string `yaml:"state_file" toml:"state_file"`
	// LockFile guards against two armed processes on the same machine.
	LockFile string `yaml:"lock_file" toml:"lock_file"`

	Network   Network   `yaml:"network"   toml:"network"`
	Device    Device    `yaml:"device"    toml:"device"`
	Remote    Remote    `yaml:"remote"    toml:"remote"`
	Heartbeat Heartbeat `yaml:"heartbeat" toml:"heartbeat"`
	Button    Button    `yaml:"button"    toml:"button"`
	Actions   Actions   `yaml:"actions"   toml:"actions"`
	Relay     Relay     `yaml:"relay"     toml:"relay"`
}

// Network configures the UDP listener and the outgoing broadcast.
type Network struct {
	// ListenHost is the local address the listener binds to.
	ListenHost string `yaml:"listen_host" toml:"listen_host" validate:"omitempty,ip"`
	// Port is the UDP port for both listening and broadcasting.
	Port int `yaml:"port" toml:"port" validate:"gte=1024,lte=65535"`
	// Phrase is the trigger payload, compared case-insensitively.
	Phrase string `yaml:"phrase" toml:"phrase" validate:"required"`
	// BroadcastAddress is where the executor announces the trigger.
	BroadcastAddress string `yaml:"broadcast_address" toml:"broadcast_address" validate:"required,ip4_addr"`
}

// Device configures the USB presence monitor.
type Device struct {
	// VendorID and ProductID form a single compound key.
	VendorID  uint16 `yaml:"vendor_id"  toml:"vendor_id"`
	ProductID uint16 `yaml:"product_id" toml:"product_id"`
	// PollInterval is the enumeration cadence; it must stay sub-second.
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" validate:"gt=0s,lt=1s"`
	// SysfsRoot is the directory listing attached USB devices.
	SysfsRoot string `yaml:"sysfs_root" toml:"sysfs_root" validate:"required"`
}

// Remote configures the authenticated relay channel and the kill command.
type Remote struct {
	// Address is the relay host:port. A non-IP host is auto-detected.
	Address string `yaml:"address" toml:"address" validate:"required,hostname_port"`
	// Token authenticates this bot against the relay.
	Token string `yaml:"token" toml:"token" validate:"required,excludes=TOKEN"`
	// Command is the command name that arms the kill switch, without the slash.
	Command string `yaml:"command" toml:"command" validate:"required,excludes=/"`
	// Secret is the parameter the command must carry.
	Secret string `yaml:"secret" toml:"secret" validate:"required"`
	// AllowedChats restricts which chats may issue commands. Empty allows all.
	AllowedChats []string `yaml:"allowed_chats" toml:"allowed_chats"`
	// Timeout bounds each unary relay call.
	Timeout time.Duration `yaml:"timeout" toml:"timeout" validate:"gt=0s"`
}

// Heartbeat configures the dead man timer.
type Heartbeat struct {
	// Timeout is how long the operator may stay silent.
	Timeout time.Duration `yaml:"timeout" toml:"timeout" validate:"gt=0s"`
	// Tick is the countdown sampling interval.
	Tick time.Duration `yaml:"tick" toml:"tick" validate:"gt=0s"`
}

// Button configures the flicd connection.
type Button struct {
	// Host is the flicd host. A non-IP value is auto-detected.
	Host string `yaml:"host" toml:"host" validate:"required"`
	// Port is the flicd TCP port.
	Port int `yaml:"port" toml:"port" validate:"gte=1,lte=65535"`
	// ScanWizardWait is how long pairing runs before verified buttons are listed.
	ScanWizardWait time.Duration `yaml:"scan_wizard_wait" toml:"scan_wizard_wait" validate:"gte=0s"`
}

// Actions configures the protective sequence.
type Actions struct {
	// Delay separates the broadcast from the dismount.
	Delay time.Duration `yaml:"delay" toml:"delay" validate:"gte=0s"`
	// Hold is how long the process lingers after the trigger before exiting.
	Hold time.Duration `yaml:"hold" toml:"hold" validate:"gte=0s"`
	// VeraCryptPath overrides the platform default binary location.
	VeraCryptPath string `yaml:"veracrypt_path" toml:"veracrypt_path"`
}

// Relay configures the tripwire-relay server.
type Relay struct {
	// ListenAddress is the gRPC listen address.
	ListenAddress string `yaml:"listen_address" toml:"listen_address" validate:"required"`
	// Bots lists the accepted tokens.
	Bots []Bot `yaml:"bots" toml:"bots" validate:"dive"`
	// PostRate is the sustained per-token command rate per second.
	PostRate float64 `yaml:"post_rate" toml:"post_rate" validate:"gt=0"`
	// PostBurst is the per-token command burst.
	PostBurst int `yaml:"post_burst" toml:"post_burst" validate:"gte=1"`
}

// Bot is one identity the relay accepts.
type Bot struct {
	Name  string `yaml:"name"  toml:"name"  validate:"required"`
	Token string `yaml:"token" toml:"token" validate:"required,excludes=TOKEN"`
}

const (
	// DefaultConfigFilename is the default filename for tripwire settings.
	DefaultConfigFilename = "tripwire.yaml"

	// DefaultStateFilename is the default filename for the last trigger record.
	DefaultStateFilename = "tripwire-last-trigger.json"

	// DefaultLockFilename is the default single-instance lock file.
	DefaultLockFilename = "tripwire.lock"

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// PlaceholderToken is the shipped token value that must be replaced.
	PlaceholderToken = "TELEGRAM_BOT_TOKEN"
)

var (
	// ErrPlaceholderToken is returned when a token still contains the placeholder marker.
	ErrPlaceholderToken = errors.New("token is a placeholder")
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownLogLevel is returned for unparsable log levels.
	errUnknownLogLevel = errors.New("unknown log level")

	//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use.
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Default returns the settings used when no file overrides them.
func Default() Config {
	return Config{
		LogLevel:  "info",
		StateFile: DefaultStateFilename,
		LockFile:  filepath.Join(os.TempDir(), DefaultLockFilename),
		Network: Network{
			ListenHost:       "0.0.0.0",
			Port:             45370,
			Phrase:           "trigger_dms",
			BroadcastAddress: "255.255.255.255",
		},
		Device: Device{
			VendorID:     0x090c,
			ProductID:    0x1000,
			PollInterval: 100 * time.Millisecond,
			SysfsRoot:    "/sys/bus/usb/devices",
		},
		Remote: Remote{
			Address: AutoHost + ":45380",
			Token:   PlaceholderToken,
			Command: "dms",
			Secret:  "execute",
			Timeout: 5 * time.Second,
		},
		Heartbeat: Heartbeat{
			Timeout: time.Hour,
			Tick:    time.Second,
		},
		Button: Button{
			Host:           AutoHost,
			Port:           5551,
			ScanWizardWait: 5 * time.Second,
		},
		Actions: Actions{
			Delay: 3 * time.Second,
			Hold:  10 * time.Second,
		},
		Relay: Relay{
			ListenAddress: ":45380",
			PostRate:      1,
			PostBurst:     5,
		},
	}
}

// Load reads configuration from path on top of the defaults.
// A missing file at the default path yields the defaults; a missing
// explicit path is an error. Files ending in .toml are parsed as TOML.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && path == DefaultConfigFilename:
		return &cfg, nil
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(contents, &cfg)
	} else {
		err = yaml.Unmarshal(contents, &cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)

	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file carries tokens and secrets.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks process-wide fields and fills empty paths with defaults.
// Monitor sections are validated separately when each monitor is built, so
// one bad section only disables its own monitor.
func Validate(cfg *Config) error {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if !knownLevel(cfg.LogLevel) {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, cfg.LogLevel)
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(os.TempDir(), DefaultLockFilename)
	}

	return nil
}

// Validate checks the network section.
func (n Network) Validate() error {
	return validateSection("network", n)
}

// Validate checks the device section.
func (d Device) Validate() error {
	return validateSection("device", d)
}

// Validate checks the remote section, reporting placeholder tokens distinctly.
func (r Remote) Validate() error {
	if strings.Contains(r.Token, "TOKEN") {
		return fmt.Errorf("remote: %w", ErrPlaceholderToken)
	}

	return validateSection("remote", r)
}

// ValidateChannel checks only the fields needed to reach the relay: the
// address and the token. The command and secret belong to the kill command.
func (r Remote) ValidateChannel() error {
	if strings.Contains(r.Token, "TOKEN") {
		return fmt.Errorf("remote: %w", ErrPlaceholderToken)
	}

	if err := validate.StructPartial(r, "Address", "Token", "Timeout"); err != nil {
		return fmt.Errorf("invalid remote channel settings: %w", err)
	}

	return nil
}

// Validate checks the heartbeat section. A zero timeout is rejected.
func (h Heartbeat) Validate() error {
	return validateSection("heartbeat", h)
}

// Validate checks the button section.
func (b Button) Validate() error {
	return validateSection("button", b)
}

// Validate checks the actions section.
func (a Actions) Validate() error {
	return validateSection("actions", a)
}

// Validate checks the relay section.
func (r Relay) Validate() error {
	for _, bot := range r.Bots {
		if strings.Contains(bot.Token, "TOKEN") {
			return fmt.Errorf("relay bot %q: %w", bot.Name, ErrPlaceholderToken)
		}
	}

	return validateSection("relay", r)
}

// validateSection runs struct validation and prefixes the section name.
func validateSection(name string, section any) error {
	if err := validate.Struct(section); err != nil {
		return fmt.Errorf("invalid %s settings: %w", name, err)
	}

	return nil
}

// knownLevel reports whether s is a level name the logger package accepts.
func knownLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "info", "warn", "warning", "error", "dpanic", "panic", "fatal":
		return true
	default:
		return false
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
