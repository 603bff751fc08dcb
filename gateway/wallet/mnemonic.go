package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/tyler-smith/go-bip39"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// DeriveMnemonicKey はBIP-39ニーモニックからBIP-44 (m/44'/60'/0'/0/index) の秘密鍵を派生する
func DeriveMnemonicKey(mnemonic, passphrase string, index uint32) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)

	// chaincfg はHD派生にのみ使う（アドレス形式には影響しない）
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	path := make(accounts.DerivationPath, len(accounts.DefaultBaseDerivationPath))
	copy(path, accounts.DefaultBaseDerivationPath)
	path[len(path)-1] = index

	child := master
	for _, n := range path {
		child, err = child.Derive(n)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
	}

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}
	return priv.ToECDSA(), nil
}
