package domain

import "strings"

// PriceTypeMonthly 号码按月计费。
const PriceTypeMonthly = "Monthly"

// Capabilities 号码支持的通信能力。
type Capabilities struct {
	SMS   bool `json:"sms"`
	MMS   bool `json:"mms"`
	Voice bool `json:"voice"`
}

// CapabilitiesFromFlags 将供应商返回的能力标记归一化，键名大小写不敏感（SMS/sms、voice/Voice）。
func CapabilitiesFromFlags(flags map[string]bool) Capabilities {
	var c Capabilities
	for k, v := range flags {
		if !v {
			continue
		}
		switch strings.ToLower(k) {
		case "sms":
			c.SMS = true
		case "mms":
			c.MMS = true
		case "voice":
			c.Voice = true
		}
	}
	return c
}

// AvailableNumber 搜索结果中可租用的号码。
type AvailableNumber struct {
	PhoneNumber  string       `json:"phoneNumber"`
	FriendlyName string       `json:"friendlyName,omitempty"`
	Country      string       `json:"country"`
	Region       string       `json:"region,omitempty"`
	Price        float64      `json:"price"`
	Capabilities Capabilities `json:"capabilities"`
	Beta         bool         `json:"beta,omitempty"`
	Type         string       `json:"type"`
}
