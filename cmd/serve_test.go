package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"property-market-onchain/config"
)

func TestExecuteClosesRuntimeWhenCommandFails(t *testing.T) {
	closed := 0
	root := &cobra.Command{
		Use: "test",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt = &runtime{logger: zap.NewNop(), closers: []func(){func() { closed++ }}}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("send failed")
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetArgs([]string{})

	err := execute(context.Background(), root)
	require.EqualError(t, err, "send failed")
	assert.Equal(t, 1, closed)
	assert.Nil(t, rt)
}

func TestApplyFlags(t *testing.T) {
	t.Cleanup(func() { logLevel, nodeURL, contractAddr, walletMode = "", "", "", "" })

	cfg := config.Default()
	before := *cfg
	applyFlags(cfg)
	assert.Equal(t, before.Node.URL, cfg.Node.URL)

	logLevel = "debug"
	nodeURL = "http://127.0.0.1:8545"
	contractAddr = "0x00000000000000000000000000000000000000aa"
	walletMode = config.WalletModeKey
	applyFlags(cfg)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Node.URL)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Contract.Address)
	assert.Equal(t, config.WalletModeKey, cfg.Wallet.Mode)
}
