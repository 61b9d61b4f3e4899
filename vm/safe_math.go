package vm

import "math"

// safe_math.go 提供带溢出检查的整数运算
// 余额、bounty、到期时间都走这里，溢出统一报 ErrOverflow

// SafeAdd 安全加法：a + b，溢出返回 ErrOverflow
func SafeAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SafeSub 安全减法：a - b，不够减返回 ErrInsufficientBalance
func SafeSub(a, b uint64) (uint64, error) {
	if a < b {
		return 0, ErrInsufficientBalance
	}
	return a - b, nil
}

// SafeAddInt64 有符号加法，溢出返回 ErrOverflow
func SafeAddInt64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SafeMul 安全乘法：a * b，溢出返回 ErrOverflow
func SafeMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxUint64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}
