package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
		ok   bool
	}{
		{"连字符分组", "Your WhatsApp code: 482-910", "482910", true},
		{"空格分组", "Telegram code 12 345 or 482 910", "482910", true},
		{"六位数字", "Your code is 123456", "123456", true},
		{"八位数字", "G-12345678 is your Google verification code", "12345678", true},
		{"四位数字", "PIN 4821", "4821", true},
		{"取第一个匹配", "Code 1111 expires, new code 2222", "1111", true},
		{"没有数字", "Welcome to the service", "", false},
		{"数字过短", "Reply 12 to stop", "", false},
		{"空正文", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := Extract(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestExtractStripsSeparators(t *testing.T) {
	for _, body := range []string{"code 4821-9034", "code 4821 9034", "code 48219034"} {
		code, ok := Extract(body)
		assert.True(t, ok, body)
		assert.Equal(t, "48219034", code, body)
	}
}
