package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SMSRENT_SERVER_HOST",
	"SMSRENT_SERVER_PORT",
	"SMSRENT_PROVIDER_ACCOUNT_SID",
	"SMSRENT_PROVIDER_AUTH_TOKEN",
	"SMSRENT_POLLING_INTERVAL",
	"SMSRENT_POLLING_STOP_POLICY",
	"SMSRENT_SEARCH_GLOBAL_TERRITORIES",
	"SMSRENT_SEARCH_GLOBAL_LIMIT",
	"SMSRENT_STORAGE_TYPE",
	"SMSRENT_DATABASE_TYPE",
	"SMSRENT_CORS_ALLOWED_ORIGINS",
	"SMSRENT_LOG_LEVEL",
	"SMSRENT_LOG_DEVELOPMENT",
}

// resetEnv 清空相关环境变量，测试结束后恢复
func resetEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		original, ok := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if ok {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		resetEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
		assert.Equal(t, "https://api.twilio.com", cfg.Provider.BaseURL)
		assert.Equal(t, 1.15, cfg.Provider.MonthlyPrice)
		assert.False(t, cfg.Provider.HasCredentials())
		assert.Equal(t, 3*time.Second, cfg.Polling.Interval)
		assert.Equal(t, time.Minute, cfg.Polling.ClockSkew)
		assert.Equal(t, StopPolicyFirstCode, cfg.Polling.StopPolicy)
		assert.Equal(t, []string{"US", "SE", "NL", "GB"}, cfg.Search.GlobalTerritories)
		assert.Equal(t, 20, cfg.Search.GlobalLimit)
		assert.Equal(t, "file", cfg.Storage.Type)
		assert.Equal(t, "my_orders", cfg.Storage.RecordKey)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "smsrent:", cfg.Redis.KeyPrefix)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		resetEnv(t)
		os.Setenv("SMSRENT_SERVER_PORT", "9090")
		os.Setenv("SMSRENT_PROVIDER_ACCOUNT_SID", "AC123")
		os.Setenv("SMSRENT_PROVIDER_AUTH_TOKEN", "secret")
		os.Setenv("SMSRENT_POLLING_INTERVAL", "5s")
		os.Setenv("SMSRENT_POLLING_STOP_POLICY", "continuous")
		os.Setenv("SMSRENT_SEARCH_GLOBAL_TERRITORIES", "us, fr ,fi")
		os.Setenv("SMSRENT_SEARCH_GLOBAL_LIMIT", "30")
		os.Setenv("SMSRENT_STORAGE_TYPE", "SQLite")
		os.Setenv("SMSRENT_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
		os.Setenv("SMSRENT_LOG_DEVELOPMENT", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.True(t, cfg.Provider.HasCredentials())
		assert.Equal(t, 5*time.Second, cfg.Polling.Interval)
		assert.Equal(t, StopPolicyContinuous, cfg.Polling.StopPolicy)
		assert.Equal(t, []string{"US", "FR", "FI"}, cfg.Search.GlobalTerritories)
		assert.Equal(t, 30, cfg.Search.GlobalLimit)
		assert.Equal(t, "sqlite", cfg.Storage.Type)
		assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
		assert.True(t, cfg.Log.Development)
	})

	failures := []struct {
		name    string
		env     map[string]string
		message string
	}{
		{"账户 SID 格式错误", map[string]string{"SMSRENT_PROVIDER_ACCOUNT_SID": "XX123"}, "must start with AC"},
		{"轮询间隔过短", map[string]string{"SMSRENT_POLLING_INTERVAL": "500ms"}, "polling.interval"},
		{"轮询间隔过长", map[string]string{"SMSRENT_POLLING_INTERVAL": "11s"}, "polling.interval"},
		{"无效的时间格式", map[string]string{"SMSRENT_POLLING_INTERVAL": "soon"}, "invalid polling.interval"},
		{"未知停止策略", map[string]string{"SMSRENT_POLLING_STOP_POLICY": "never"}, "polling.stop_policy"},
		{"全球搜索上限过小", map[string]string{"SMSRENT_SEARCH_GLOBAL_LIMIT": "5"}, "search.global_limit"},
		{"空的全球地区", map[string]string{"SMSRENT_SEARCH_GLOBAL_TERRITORIES": " , "}, "global_territories"},
		{"未知存储类型", map[string]string{"SMSRENT_STORAGE_TYPE": "tape"}, "storage.type"},
		{"sql 存储缺少数据库类型", map[string]string{"SMSRENT_STORAGE_TYPE": "sql"}, "database.type"},
	}

	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			resetEnv(t)
			for k, v := range tc.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestLoadFile(t *testing.T) {
	resetEnv(t)
	path := filepath.Join(t.TempDir(), "smsrent.yaml")
	content := `
provider:
  account_sid: ACfile
  auth_token: token
polling:
  interval: 2s
search:
  global_territories: [se, nl]
  global_limit: 25
storage:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ACfile", cfg.Provider.AccountSID)
	assert.Equal(t, 2*time.Second, cfg.Polling.Interval)
	assert.Equal(t, []string{"SE", "NL"}, cfg.Search.GlobalTerritories)
	assert.Equal(t, 25, cfg.Search.GlobalLimit)
	assert.Equal(t, "memory", cfg.Storage.Type)

	t.Run("环境变量优先于配置文件", func(t *testing.T) {
		os.Setenv("SMSRENT_POLLING_INTERVAL", "4s")
		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 4*time.Second, cfg.Polling.Interval)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"单个值", "US", []string{"US"}},
		{"多个值", "US,SE,NL", []string{"US", "SE", "NL"}},
		{"带空格", " US , SE ", []string{"US", "SE"}},
		{"空字符串", "", []string{}},
		{"只有逗号", ",,,", []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseList(tc.input))
		})
	}
}
