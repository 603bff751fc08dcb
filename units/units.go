// Package units はETH（表示単位）とWei（コントラクト単位）の固定小数点変換を行う
package units

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// EtherDecimals は 1 ETH = 10^18 Wei
const EtherDecimals = 18

var (
	ErrEmptyAmount    = errors.New("amount is empty")
	ErrInvalidAmount  = errors.New("amount is not a number")
	ErrTooManyDecimal = errors.New("amount has more than 18 decimal places")
)

// 10進数 + 任意の指数部のみ受け付ける（分数・16進は不可）
var decimalPattern = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]{1,3})?$`)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// WeiPerEther は 10^18 のコピーを返す
func WeiPerEther() *big.Int {
	return new(big.Int).Set(weiPerEther)
}

// ToWei はユーザー入力のETH金額をWeiに変換する
// 例: "1.5" -> 1500000000000000000
func ToWei(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %q", ErrTooManyDecimal, amount)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FromWei はWeiをETH表記の文字列に変換する（末尾の0は削る）
// 例: 1500000000000000000 -> "1.5"
func FromWei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}

	abs := new(big.Int).Abs(wei)
	q, m := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))

	sign := ""
	if wei.Sign() < 0 {
		sign = "-"
	}
	if m.Sign() == 0 {
		return sign + q.String()
	}

	frac := m.String()
	frac = strings.Repeat("0", EtherDecimals-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	return sign + q.String() + "." + frac
}

// ParseWei は10進数のWei文字列を解釈する
func ParseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}
