package Config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds everything the generator service needs at startup.
type Config struct {
	HTTPAddr string `toml:"http_addr"`
	// RPCURL is the node endpoint transactions are submitted to. Submission
	// is disabled when empty.
	RPCURL string `toml:"rpc_url"`
	// AccountPath points at the Account.json holding the signing mnemonic.
	AccountPath string `toml:"account"`
	// PrivateKey is a hex encoded signing key; it takes precedence over
	// AccountPath. Never written back out.
	PrivateKey string `toml:"private_key"`
	LogLevel   string `toml:"log_level"`
	// PollInterval is how often receipts are polled after submission.
	PollInterval Duration `toml:"poll_interval"`
	// WaitTimeout bounds how long a request waits for the pending pool or a
	// receipt.
	WaitTimeout Duration `toml:"wait_timeout"`
}

// Duration is a time.Duration written as "1s", "500ms" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPAddr:     ":8080",
		AccountPath:  "Account.json",
		LogLevel:     "info",
		PollInterval: Duration(time.Second),
		WaitTimeout:  Duration(30 * time.Second),
	}
}

// LoadFile reads a TOML file on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	if c.PrivateKey == "" && c.AccountPath == "" {
		return errors.New("either a private key or an account file is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", time.Duration(c.PollInterval))
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive, got %v", time.Duration(c.WaitTimeout))
	}
	return nil
}

// String renders the configuration for logs with the key redacted.
func (c Config) String() string {
	key := ""
	if c.PrivateKey != "" {
		key = "<redacted>"
	}
	return fmt.Sprintf("http=%s rpc=%s account=%s key=%s log=%s poll=%v wait=%v",
		c.HTTPAddr, c.RPCURL, c.AccountPath, key, c.LogLevel, time.Duration(c.PollInterval), time.Duration(c.WaitTimeout))
}
