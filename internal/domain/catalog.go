package domain

// GlobalCountryID 表示“全球”伪国家，搜索时会依次查询多个地区。
const GlobalCountryID = 0

// Country 可选的号码所属国家/地区。
type Country struct {
	ID       int     `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	DialCode string  `json:"dialCode" yaml:"dial_code"`
	ISO      string  `json:"iso" yaml:"iso"`
	Flag     string  `json:"flag,omitempty" yaml:"flag"`
	Price    float64 `json:"price" yaml:"price"`
}

// IsGlobal 判断是否为全球伪国家。
func (c Country) IsGlobal() bool {
	return c.ID == GlobalCountryID
}

// Service 用户租号时声明的目标服务。
type Service struct {
	ID    string  `json:"id" yaml:"id"`
	Name  string  `json:"name" yaml:"name"`
	Icon  string  `json:"icon,omitempty" yaml:"icon"`
	Price float64 `json:"price" yaml:"price"`
}
