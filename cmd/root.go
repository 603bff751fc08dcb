// Package cmd は property-market のコマンドライン
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"property-market-onchain/config"
	"property-market-onchain/logger"
)

var (
	configPath   string
	logLevel     string
	nodeURL      string
	contractAddr string
	walletMode   string

	rt *runtime
)

// Execute はルートコマンドを実行する
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd())
}

// execute はコマンドの成否にかかわらず実行後に接続を閉じる
func execute(ctx context.Context, root *cobra.Command) error {
	defer closeRuntime()
	return root.ExecuteContext(ctx)
}

func closeRuntime() {
	if rt != nil {
		rt.Close()
		rt = nil
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "property-market",
		Short:        "Browse, list and buy properties on the PropertyMarket contract",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyFlags(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
			if err != nil {
				return err
			}
			rt, err = newRuntime(cmd.Context(), cfg, log)
			return err
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $CONFIG_FILE)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&nodeURL, "node-url", "", "Ethereum JSON-RPC endpoint (default $ETH_NODE_URL)")
	root.PersistentFlags().StringVar(&contractAddr, "contract", "", "PropertyMarket contract address (default $PROPERTY_CONTRACT_ADDRESS)")
	root.PersistentFlags().StringVar(&walletMode, "wallet", "", "wallet provider: rpc, key, keystore or mnemonic (default $WALLET_MODE)")

	root.AddCommand(serveCmd(), propertiesCmd(), listCmd(), buyCmd(), accountCmd())
	return root
}

// applyFlags はフラグで指定された値で設定を上書きする
func applyFlags(cfg *config.Config) {
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if nodeURL != "" {
		cfg.Node.URL = nodeURL
	}
	if contractAddr != "" {
		cfg.Contract.Address = contractAddr
	}
	if walletMode != "" {
		cfg.Wallet.Mode = walletMode
	}
}
