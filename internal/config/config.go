package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Client      ClientConfig      `toml:"client"`
	Network     NetworkConfig     `toml:"network"`
	LoginServer LoginServerConfig `toml:"login_server"`
	Database    DatabaseConfig    `toml:"database"`
	Logging     LoggingConfig     `toml:"logging"`
}

type ClientConfig struct {
	ServerAddress string        `toml:"server_address"`
	DialTimeout   time.Duration `toml:"dial_timeout"`
	AutoLogin     bool          `toml:"auto_login"`
	Account       string        `toml:"account"`
	Password      string        `toml:"password"`
	MAC1          string        `toml:"mac1"`   // 6 bytes, hex
	HDDID         string        `toml:"hdd_id"` // 4 bytes, hex
	MAC2          string        `toml:"mac2"`   // 6 bytes, hex
}

type NetworkConfig struct {
	ReadBufferSize   int           `toml:"read_buffer_size"`
	InQueueSize      int           `toml:"in_queue_size"`
	OutQueueSize     int           `toml:"out_queue_size"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
	PacketsPerSecond int           `toml:"packets_per_second"` // 0 = unlimited
}

type LoginServerConfig struct {
	BindAddress        string        `toml:"bind_address"`
	Version            uint16        `toml:"version"`
	Patch              string        `toml:"patch"`
	Locale             byte          `toml:"locale"` // 8 = GMS
	AccountsFile       string        `toml:"accounts_file"`
	AutoCreateAccounts bool          `toml:"auto_create_accounts"`
	PingInterval       time.Duration `toml:"ping_interval"` // 0 = never ping
}

// DatabaseConfig is only used by the login stub. An empty DSN selects the
// YAML account table instead.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LoginServer.Version == 0 {
		return errors.New("login_server.version must be set")
	}
	if _, _, _, err := c.Client.Hardware(); err != nil {
		return err
	}
	return nil
}

// Hardware decodes the hex identifiers sent with C_LoginPassword.
func (c ClientConfig) Hardware() (mac1 [6]byte, hddID [4]byte, mac2 [6]byte, err error) {
	if err = decodeHex("client.mac1", c.MAC1, mac1[:]); err != nil {
		return
	}
	if err = decodeHex("client.hdd_id", c.HDDID, hddID[:]); err != nil {
		return
	}
	err = decodeHex("client.mac2", c.MAC2, mac2[:])
	return
}

func decodeHex(key, s string, dst []byte) error {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("%s: want %d bytes, got %d", key, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

func defaults() *Config {
	return &Config{
		Client: ClientConfig{
			ServerAddress: "127.0.0.1:8484",
			DialTimeout:   10 * time.Second,
			AutoLogin:     true,
			Account:       "admin",
			Password:      "admin",
			MAC1:          "00e1ffffffff",
			HDDID:         "00e7891b",
			MAC2:          "00ffffffffff",
		},
		Network: NetworkConfig{
			ReadBufferSize: 8192,
			InQueueSize:    128,
			OutQueueSize:   256,
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    0,
		},
		LoginServer: LoginServerConfig{
			BindAddress:  "0.0.0.0:8484",
			Version:      83,
			Patch:        "1",
			Locale:       8,
			AccountsFile: "data/accounts.yaml",
			PingInterval: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
