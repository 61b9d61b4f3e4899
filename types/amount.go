package types

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals 原生币最小单位精度（1 coin = 1e9 base units）
const NativeDecimals = 9

var maxUint64Dec = uintDecimal(math.MaxUint64)

func uintDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// ParseUnits 把十进制字符串按 decimals 转成最小单位整数
// 超出精度、负数、超过 uint64 都返回错误
func ParseUnits(s string, decimals int32) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %q", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	if scaled.GreaterThan(maxUint64Dec) {
		return 0, fmt.Errorf("amount %q overflows uint64", s)
	}
	return scaled.BigInt().Uint64(), nil
}

// FormatUnits 最小单位整数 -> 去掉尾零的十进制字符串
func FormatUnits(v uint64, decimals int32) string {
	return uintDecimal(v).Shift(-decimals).String()
}

// ParseNative 原生币数量，例如 "1.5" -> 1500000000
func ParseNative(s string) (uint64, error) {
	return ParseUnits(s, NativeDecimals)
}

// FormatNative 1500000000 -> "1.5"
func FormatNative(v uint64) string {
	return FormatUnits(v, NativeDecimals)
}
