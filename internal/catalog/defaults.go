package catalog

import "smsrent/backend/internal/domain"

// Default 返回内置目录。
func Default() *Catalog {
	c, err := New(defaultCountries(), defaultServices())
	if err != nil {
		panic(err)
	}
	return c
}

func defaultCountries() []domain.Country {
	return []domain.Country{
		{ID: domain.GlobalCountryID, Name: "Global", Flag: "🌍", Price: DefaultPrice},
		{ID: 1, Name: "USA", DialCode: "+1", ISO: "US", Flag: "🇺🇸", Price: DefaultPrice},
		{ID: 46, Name: "Sweden", DialCode: "+46", ISO: "SE", Flag: "🇸🇪", Price: DefaultPrice},
		{ID: 31, Name: "Netherlands", DialCode: "+31", ISO: "NL", Flag: "🇳🇱", Price: DefaultPrice},
		{ID: 44, Name: "United Kingdom", DialCode: "+44", ISO: "GB", Flag: "🇬🇧", Price: DefaultPrice},
		{ID: 33, Name: "France", DialCode: "+33", ISO: "FR", Flag: "🇫🇷", Price: DefaultPrice},
		{ID: 358, Name: "Finland", DialCode: "+358", ISO: "FI", Flag: "🇫🇮", Price: DefaultPrice},
		{ID: 7, Name: "Russia", DialCode: "+7", ISO: "RU", Flag: "🇷🇺", Price: DefaultPrice},
		{ID: 62, Name: "Indonesia", DialCode: "+62", ISO: "ID", Flag: "🇮🇩", Price: DefaultPrice},
	}
}

func defaultServices() []domain.Service {
	return []domain.Service{
		{ID: "wa", Name: "WhatsApp", Icon: "whatsapp", Price: 0.5},
		{ID: "tg", Name: "Telegram", Icon: "telegram", Price: 0.4},
		{ID: "fb", Name: "Facebook", Icon: "facebook", Price: 0.3},
		{ID: "ig", Name: "Instagram", Icon: "instagram", Price: 0.35},
		{ID: "tw", Name: "Twitter", Icon: "twitter", Price: 0.25},
		{ID: "go", Name: "Google", Icon: "google", Price: 0.45},
	}
}
