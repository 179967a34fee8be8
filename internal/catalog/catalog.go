// Package catalog 保存可选国家与服务的静态目录，支持从 YAML 文件替换默认数据。
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"smsrent/backend/internal/domain"
)

// DefaultPrice 默认的号码月租价格。
const DefaultPrice = 1.15

// Catalog 只读目录，创建后可被并发读取。
type Catalog struct {
	countries []domain.Country
	services  []domain.Service
	byID      map[int]domain.Country
	byISO     map[string]domain.Country
	byService map[string]domain.Service
}

// file YAML 目录文件结构。
type file struct {
	Countries []domain.Country `yaml:"countries"`
	Services  []domain.Service `yaml:"services"`
}

// New 校验并构造目录。国家 ID、ISO 代码与服务 ID 必须唯一。
func New(countries []domain.Country, services []domain.Service) (*Catalog, error) {
	c := &Catalog{
		byID:      make(map[int]domain.Country, len(countries)),
		byISO:     make(map[string]domain.Country, len(countries)),
		byService: make(map[string]domain.Service, len(services)),
	}

	for _, country := range countries {
		if _, exists := c.byID[country.ID]; exists {
			return nil, fmt.Errorf("duplicate country id %d", country.ID)
		}
		country.ISO = strings.ToUpper(strings.TrimSpace(country.ISO))
		if country.ISO == "" && !country.IsGlobal() {
			return nil, fmt.Errorf("country %d has no iso code", country.ID)
		}
		if country.ISO != "" {
			if _, exists := c.byISO[country.ISO]; exists {
				return nil, fmt.Errorf("duplicate country iso %s", country.ISO)
			}
			c.byISO[country.ISO] = country
		}
		c.byID[country.ID] = country
		c.countries = append(c.countries, country)
	}

	for _, svc := range services {
		if svc.ID == "" {
			return nil, fmt.Errorf("service %q has no id", svc.Name)
		}
		if _, exists := c.byService[svc.ID]; exists {
			return nil, fmt.Errorf("duplicate service id %s", svc.ID)
		}
		c.byService[svc.ID] = svc
		c.services = append(c.services, svc)
	}

	return c, nil
}

// LoadFile 从 YAML 文件加载目录。
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Countries) == 0 || len(f.Services) == 0 {
		return nil, fmt.Errorf("catalog %s must define countries and services", path)
	}
	return New(f.Countries, f.Services)
}

// Load 路径为空时返回默认目录。
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// Countries 按定义顺序返回全部国家。
func (c *Catalog) Countries() []domain.Country {
	out := make([]domain.Country, len(c.countries))
	copy(out, c.countries)
	return out
}

// Services 按定义顺序返回全部服务。
func (c *Catalog) Services() []domain.Service {
	out := make([]domain.Service, len(c.services))
	copy(out, c.services)
	return out
}

// Country 按 ID 查找国家。
func (c *Catalog) Country(id int) (domain.Country, error) {
	country, ok := c.byID[id]
	if !ok {
		return domain.Country{}, fmt.Errorf("%w: %d", domain.ErrUnknownCountry, id)
	}
	return country, nil
}

// CountryByISO 按 ISO 代码查找国家，大小写不敏感。
func (c *Catalog) CountryByISO(iso string) (domain.Country, bool) {
	country, ok := c.byISO[strings.ToUpper(iso)]
	return country, ok
}

// Service 按 ID 查找服务。
func (c *Catalog) Service(id string) (domain.Service, error) {
	svc, ok := c.byService[id]
	if !ok {
		return domain.Service{}, fmt.Errorf("%w: %s", domain.ErrUnknownService, id)
	}
	return svc, nil
}

// CountryIDForNumber 根据号码归属地区解析国家 ID，目录中没有该地区时返回全球 ID。
func (c *Catalog) CountryIDForNumber(phone string) int {
	if country, ok := c.CountryByISO(domain.RegionForNumber(phone)); ok {
		return country.ID
	}
	return domain.GlobalCountryID
}
