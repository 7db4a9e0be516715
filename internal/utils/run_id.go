package utils

import (
	"crypto/rand"
	"io"
	"strings"
)

const runIDAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"

// GenerateRunID 为一次自动化运行生成短随机ID，用作结果目录名。
func GenerateRunID() (string, error) {
	length := 12
	bytes := make([]byte, length)

	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.Grow(length)
	for _, b := range bytes {
		builder.WriteByte(runIDAlphabet[b&63])
	}

	return builder.String(), nil
}
