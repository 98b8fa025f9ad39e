// Package config loads pixelmap settings from defaults, an optional
// pixelmap.yaml, a .env file and PIXELMAP_ environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PIXELMAP_DEVNET_URL
// for devnet.url.
const EnvPrefix = "PIXELMAP"

type Config struct {
	// Platform selects the chain backend by name, see chain.ParsePlatform.
	Platform string       `mapstructure:"platform"`
	Devnet   DevnetConfig `mapstructure:"devnet"`
	EVM      EVMConfig    `mapstructure:"evm"`
	IPFS     IPFSConfig   `mapstructure:"ipfs"`
	Window   WindowConfig `mapstructure:"window"`
	Log      LogConfig    `mapstructure:"log"`
}

type DevnetConfig struct {
	// URL is where clients reach the devnet.
	URL string `mapstructure:"url"`
	// Listen and StorageListen are the server addresses of the chain API and
	// the content store.
	Listen        string        `mapstructure:"listen"`
	StorageListen string        `mapstructure:"storage_listen"`
	BlockTime     time.Duration `mapstructure:"block_time"`
	Accounts      []string      `mapstructure:"accounts"`
	Price         string        `mapstructure:"price"`
	Funds         string        `mapstructure:"funds"`
	AllowOrigins  []string      `mapstructure:"allow_origins"`
}

type EVMConfig struct {
	RPC      string `mapstructure:"rpc"`
	Contract string `mapstructure:"contract"`
	// ReadOnly skips the node wallet; writes then fail with
	// chain.ErrNotSignedIn.
	ReadOnly bool `mapstructure:"read_only"`
}

type IPFSConfig struct {
	API      string `mapstructure:"api"`
	Gateway  string `mapstructure:"gateway"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Pin      bool   `mapstructure:"pin"`
	// MaxBytes bounds the devnet content store's uploads.
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type WindowConfig struct {
	Title  string `mapstructure:"title"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Debug  bool   `mapstructure:"debug"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	// File, when set, receives a rotated copy of the log.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("platform", "devnet")

	v.SetDefault("devnet.url", "http://127.0.0.1:9944")
	v.SetDefault("devnet.listen", "127.0.0.1:9944")
	v.SetDefault("devnet.storage_listen", "127.0.0.1:5001")
	v.SetDefault("devnet.block_time", 6*time.Second)
	v.SetDefault("devnet.accounts", []string{"alice.devnet", "bob.devnet", "charlie.devnet"})
	v.SetDefault("devnet.price", "1")
	v.SetDefault("devnet.funds", "1000")
	v.SetDefault("devnet.allow_origins", []string{})

	v.SetDefault("evm.rpc", "")
	v.SetDefault("evm.contract", "")
	v.SetDefault("evm.read_only", false)

	v.SetDefault("ipfs.api", "http://127.0.0.1:5001")
	v.SetDefault("ipfs.gateway", "https://ipfs.io/ipfs/")
	v.SetDefault("ipfs.username", "")
	v.SetDefault("ipfs.password", "")
	v.SetDefault("ipfs.pin", true)
	v.SetDefault("ipfs.max_bytes", 10<<20)

	v.SetDefault("window.title", "Pixel Map")
	v.SetDefault("window.width", 800)
	v.SetDefault("window.height", 800)
	v.SetDefault("window.debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
}

// Load reads the configuration. An empty file looks for pixelmap.yaml in the
// working directory and carries on without it; a named file must exist. A
// .env file in the working directory is loaded into the environment first
// without overriding variables that are already set.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	} else {
		v.SetConfigName("pixelmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read pixelmap.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that other packages parse later.
func (c *Config) Validate() error {
	if _, err := c.ChainPlatform(); err != nil {
		return fmt.Errorf("config: platform: %w", err)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	if _, _, err := c.Devnet.Amounts(); err != nil {
		return err
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("config: invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Devnet.BlockTime < 0 {
		return fmt.Errorf("config: negative devnet.block_time %v", c.Devnet.BlockTime)
	}
	return nil
}

// ChainPlatform returns the configured platform.
func (c *Config) ChainPlatform() (chain.Platform, error) {
	return chain.ParsePlatform(c.Platform)
}

// Amounts parses the devnet mint price and starting funds.
func (d DevnetConfig) Amounts() (price, funds decimal.Decimal, err error) {
	if price, err = decimal.NewFromString(d.Price); err != nil {
		return price, funds, fmt.Errorf("config: devnet.price %q: %w", d.Price, err)
	}
	if funds, err = decimal.NewFromString(d.Funds); err != nil {
		return price, funds, fmt.Errorf("config: devnet.funds %q: %w", d.Funds, err)
	}
	if price.IsNegative() || funds.IsNegative() {
		return price, funds, fmt.Errorf("config: devnet amounts must not be negative")
	}
	return price, funds, nil
}

// ChainAccounts returns the devnet accounts as chain accounts.
func (d DevnetConfig) ChainAccounts() []chain.Account {
	out := make([]chain.Account, 0, len(d.Accounts))
	for _, a := range d.Accounts {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, chain.Account{Address: a, Name: strings.SplitN(a, ".", 2)[0]})
		}
	}
	return out
}
