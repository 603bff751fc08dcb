package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/term"

	"property-market-onchain/config"
	"property-market-onchain/gateway/contract"
	"property-market-onchain/gateway/wallet"
	usecase "property-market-onchain/usecase/property"
)

// runtime はコマンド間で共有する接続と依存関係
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *ethclient.Client
	backend  contract.Backend // イベント購読に使うため、WS接続があればそちらを使う
	provider wallet.Provider
	registry *prometheus.Registry
	metrics  *contract.Metrics
	closers  []func()
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	r := &runtime{cfg: cfg, logger: logger}

	client, err := ethclient.DialContext(ctx, cfg.Node.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to Ethereum node: %w", err)
	}
	r.client = client
	r.backend = client
	r.closers = append(r.closers, client.Close)
	logger.Info("Connected to Ethereum node (HTTP)")

	if cfg.Node.WSURL != "" {
		wsClient, err := ethclient.DialContext(ctx, cfg.Node.WSURL)
		if err != nil {
			// HTTP接続でもコントラクト機能は使用可能
			logger.Warn("Failed to connect WebSocket for events", zap.Error(err))
		} else {
			r.backend = wsClient
			r.closers = append(r.closers, wsClient.Close)
			logger.Info("Connected to Ethereum node (WebSocket for events)")
		}
	}

	provider, err := newProvider(cfg, client)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.provider = provider
	logger.Info("Wallet provider ready", zap.String("mode", cfg.Wallet.Mode))

	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.metrics = contract.NewMetrics(r.registry)
	return r, nil
}

// newProvider は設定されたモードのウォレットプロバイダーを作成
func newProvider(cfg *config.Config, client *ethclient.Client) (wallet.Provider, error) {
	switch cfg.Wallet.Mode {
	case config.WalletModeRPC:
		return wallet.NewRPCProvider(client.Client()), nil
	case config.WalletModeKey:
		return wallet.NewKeyProvider(client, cfg.Wallet.PrivateKey)
	case config.WalletModeKeystore:
		passphrase := cfg.Wallet.Passphrase
		if passphrase == "" {
			p, err := promptPassphrase()
			if err != nil {
				return nil, err
			}
			passphrase = p
		}
		return wallet.NewKeystoreProvider(client, cfg.Wallet.Keystore, passphrase)
	case config.WalletModeMnemonic:
		return wallet.NewMnemonicProvider(client, cfg.Wallet.Mnemonic, cfg.Wallet.AccountIndex)
	default:
		return nil, fmt.Errorf("unknown wallet mode %q", cfg.Wallet.Mode)
	}
}

func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("WALLET_PASSPHRASE is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Keystore passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}

// newController は view に描画するコントローラーを作成
func (r *runtime) newController(view usecase.View) *usecase.Controller {
	factory := func(p wallet.Provider) (contract.ContractGateway, error) {
		return contract.NewPropertyContractGateway(r.backend, p, r.cfg.Contract.Address, contract.Options{
			TxTimeout:    r.cfg.Tx.Timeout,
			PollInterval: r.cfg.Tx.PollInterval,
			Logger:       r.logger,
			Metrics:      r.metrics,
		})
	}
	session := usecase.NewSession(r.provider, r.cfg.Contract.Address, factory)
	return usecase.NewController(session, view, r.logger)
}

// Close は接続を閉じ、ログを書き出す
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	_ = r.logger.Sync()
}
