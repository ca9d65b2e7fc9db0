package bigint

import (
	"math/big"
)

var (
	Zero = big.NewInt(0)
	One  = big.NewInt(1)
)

// StringToBigInt 将十进制字符串转换为 *big.Int，无法解析时返回 nil
func StringToBigInt(input string) (num *big.Int) {
	if input != "" {
		n, ok := new(big.Int).SetString(input, 10)
		if ok {
			num = n
		}
	}
	return
}

// OrZero returns n, or a fresh zero when n is nil.
func OrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

// Sum adds all values, treating nil as zero.
func Sum(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}
