// Package utils 提供 hash、重试/退避等通用工具
package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SHA256Hex 计算输入的 SHA256 并返回十六进制小写字符串
func SHA256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Retry 以固定退避重试 fn，最多 attempts 次，context 取消时提前返回
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
