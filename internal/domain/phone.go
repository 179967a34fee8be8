package domain

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhoneNumber 将号码规范为 E.164 格式。缺少 "+" 前缀时按国际号码补全。
func NormalizePhoneNumber(raw string) (string, error) {
	num, err := parsePhone(raw)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// RegionForNumber 返回号码所属地区的 ISO 代码，无法识别时返回空字符串。
// 号段未分配的号码（如测试号段）退回到国家码对应的主地区。
func RegionForNumber(raw string) string {
	num, err := parsePhone(raw)
	if err != nil {
		return ""
	}
	if region := phonenumbers.GetRegionCodeForNumber(num); region != "" && region != "ZZ" {
		return region
	}
	region := phonenumbers.GetRegionCodeForCountryCode(int(num.GetCountryCode()))
	if region == "ZZ" {
		return ""
	}
	return region
}

// SamePhoneNumber 忽略格式差异比较两个号码，例如 URL 中 "+" 被解码为空格的情况。
func SamePhoneNumber(a, b string) bool {
	da, db := digitsOnly(a), digitsOnly(b)
	return da != "" && da == db
}

// LooksLikePhoneNumber 判断字符串是否只由号码字符组成，用于区分号码与订单 ID。
func LooksLikePhoneNumber(s string) bool {
	s = strings.TrimSpace(s)
	if digitsOnly(s) == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("+0123456789 -()", r) {
			return false
		}
	}
	return true
}

func parsePhone(raw string) (*phonenumbers.PhoneNumber, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return nil, ErrInvalidPhoneNumber
	}
	if !strings.HasPrefix(clean, "+") {
		clean = "+" + clean
	}
	num, err := phonenumbers.Parse(clean, "")
	if err != nil {
		return nil, ErrInvalidPhoneNumber
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return nil, ErrInvalidPhoneNumber
	}
	return num, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
