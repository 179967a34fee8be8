// Package otp 从短信正文中提取一次性验证码。
package otp

import (
	"regexp"
	"strings"
)

// 先匹配 3-4 位加可选分隔符再加 3-4 位的分组形式（如 "482-910"），
// 否则匹配 4-8 位的独立数字串。取正文中最靠前的匹配。
var codePattern = regexp.MustCompile(`(\d{3,4}[\s-]?\d{3,4})|\b\d{4,8}\b`)

// Extract 返回正文中的验证码（已去除分隔符）。没有匹配时返回 false。
func Extract(body string) (string, bool) {
	match := codePattern.FindString(body)
	if match == "" {
		return "", false
	}
	code := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if code == "" {
		return "", false
	}
	return code, true
}
