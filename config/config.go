// Package config はYAMLファイル・.env・環境変数から設定を読み込む
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// ウォレットプロバイダーの種類
const (
	WalletModeRPC      = "rpc"      // ノード管理のアカウント (eth_sendTransaction)
	WalletModeKey      = "key"      // 16進の秘密鍵
	WalletModeKeystore = "keystore" // go-ethereum の keystore ファイル
	WalletModeMnemonic = "mnemonic" // BIP-39 ニーモニック
)

type Config struct {
	Node struct {
		URL   string `yaml:"url"`
		WSURL string `yaml:"ws_url"`
	} `yaml:"node"`
	Contract struct {
		Address string `yaml:"address"`
	} `yaml:"contract"`
	Wallet struct {
		Mode          string        `yaml:"mode"`
		PrivateKey    string        `yaml:"private_key"`
		Keystore      string        `yaml:"keystore"`
		Passphrase    string        `yaml:"passphrase"`
		Mnemonic      string        `yaml:"mnemonic"`
		AccountIndex  uint32        `yaml:"account_index"`
		WatchInterval time.Duration `yaml:"watch_interval"`
	} `yaml:"wallet"`
	Tx struct {
		Timeout      time.Duration `yaml:"timeout"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"tx"`
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// Default はデフォルト値を設定した Config を返す
func Default() *Config {
	cfg := &Config{}
	cfg.Wallet.Mode = WalletModeRPC
	cfg.Wallet.WatchInterval = 5 * time.Second
	cfg.Tx.Timeout = 3 * time.Minute
	cfg.Tx.PollInterval = 2 * time.Second
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	return cfg
}

// Load は設定を読み込む
// 優先順位: 環境変数 (.env含む) > YAMLファイル > デフォルト値
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config file: %w", err)
		}
	}

	// .env は存在しなくてもよい
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Node.URL, "INFURA_SEPOLIA_URL")
	setString(&c.Node.URL, "ETH_NODE_URL")
	setString(&c.Node.WSURL, "INFURA_SEPOLIA_WS_URL")
	setString(&c.Node.WSURL, "ETH_NODE_WS_URL")
	setString(&c.Contract.Address, "PROPERTY_CONTRACT_ADDRESS")
	setString(&c.Wallet.Mode, "WALLET_MODE")
	setString(&c.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	setString(&c.Wallet.Keystore, "WALLET_KEYSTORE")
	setString(&c.Wallet.Passphrase, "WALLET_PASSPHRASE")
	setString(&c.Wallet.Mnemonic, "WALLET_MNEMONIC")
	setString(&c.Server.Port, "PORT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("WALLET_ACCOUNT_INDEX"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("WALLET_ACCOUNT_INDEX: %w", err)
		}
		c.Wallet.AccountIndex = uint32(n)
	}
	if err := setDuration(&c.Wallet.WatchInterval, "WALLET_WATCH_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.Tx.Timeout, "TX_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.Tx.PollInterval, "TX_POLL_INTERVAL")
}

// Validate は必須項目と組み合わせを検証する
func (c *Config) Validate() error {
	if c.Node.URL == "" {
		return errors.New("ETH_NODE_URL environment variable not set")
	}
	if c.Contract.Address == "" {
		return errors.New("PROPERTY_CONTRACT_ADDRESS environment variable not set")
	}
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("invalid contract address: %s", c.Contract.Address)
	}

	switch c.Wallet.Mode {
	case WalletModeRPC:
	case WalletModeKey:
		if c.Wallet.PrivateKey == "" {
			return errors.New("WALLET_PRIVATE_KEY is required for wallet mode \"key\"")
		}
	case WalletModeKeystore:
		if c.Wallet.Keystore == "" {
			return errors.New("WALLET_KEYSTORE is required for wallet mode \"keystore\"")
		}
	case WalletModeMnemonic:
		if c.Wallet.Mnemonic == "" {
			return errors.New("WALLET_MNEMONIC is required for wallet mode \"mnemonic\"")
		}
	default:
		return fmt.Errorf("unknown wallet mode %q", c.Wallet.Mode)
	}

	if c.Tx.Timeout <= 0 || c.Tx.PollInterval <= 0 {
		return errors.New("tx timeout and poll interval must be positive")
	}
	if c.Wallet.WatchInterval <= 0 {
		return errors.New("WALLET_WATCH_INTERVAL must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
