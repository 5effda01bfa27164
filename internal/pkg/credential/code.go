package credential

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeSpace = 1_000_000

// GenerateCode 生成 6 位数字验证码（000000-999999 均匀分布）。
//
// 不检查与现有验证码是否冲突。
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
