package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxBackend はローカル署名に必要なノードAPI（ethclient.Client が満たす）
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// SignerProvider はローカルの秘密鍵で署名するプロバイダー
type SignerProvider struct {
	backend TxBackend
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSignerProvider は秘密鍵からプロバイダーを作成
func NewSignerProvider(backend TxBackend, key *ecdsa.PrivateKey) *SignerProvider {
	return &SignerProvider{
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeyProvider は16進の秘密鍵（0x有無どちらでも可）からプロバイダーを作成
func NewKeyProvider(backend TxBackend, hexKey string) (*SignerProvider, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewSignerProvider(backend, key), nil
}

// NewKeystoreProvider は go-ethereum 形式の keystore ファイルを復号してプロバイダーを作成
func NewKeystoreProvider(backend TxBackend, path, passphrase string) (*SignerProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return NewSignerProvider(backend, key.PrivateKey), nil
}

// NewMnemonicProvider はBIP-39ニーモニックの m/44'/60'/0'/0/index から鍵を派生してプロバイダーを作成
func NewMnemonicProvider(backend TxBackend, mnemonic string, index uint32) (*SignerProvider, error) {
	key, err := DeriveMnemonicKey(mnemonic, "", index)
	if err != nil {
		return nil, err
	}
	return NewSignerProvider(backend, key), nil
}

// Address は署名に使うアドレス
func (s *SignerProvider) Address() common.Address {
	return s.address
}

func (s *SignerProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return s.Accounts(ctx)
}

func (s *SignerProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{s.address}, nil
}

func (s *SignerProvider) ChainID(ctx context.Context) (*big.Int, error) {
	return s.backend.ChainID(ctx)
}

// SendTransaction は nonce・ガス・手数料を埋めて署名し、ブロードキャストする
func (s *SignerProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.From != s.address {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownAccount, req.From.Hex())
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}

	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    req.To,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * 6 / 5 // 20% のマージン

	txData, err := s.feeTx(ctx, chainID, nonce, gas, req.To, value, req.Data)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

// feeTx はEIP-1559対応チェーンなら DynamicFeeTx、そうでなければ LegacyTx を作る
func (s *SignerProvider) feeTx(ctx context.Context, chainID *big.Int, nonce, gas uint64, to *common.Address, value *big.Int, data []byte) (types.TxData, error) {
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       to,
			Value:    value,
			Data:     data,
		}, nil
	}

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	}, nil
}
