package config

import (
	"encoding/json"
	"fmt"
	"os"

	"bumpin-grid-bot-go/internal/models"
)

// AppConfig 是配置文件的顶层结构: 全局设置加上一组命名的策略。
// 每个策略对应一个独立运行的网格引擎实例。
type AppConfig struct {
	Log models.LogConfig `json:"log"`

	// 全局 API 最小请求间隔 (毫秒), 所有引擎实例共享。
	RateLimitIntervalMs int `json:"rate_limit_interval_ms,omitempty"`

	Strategies map[string]*models.Config `json:"strategies"`
}

// Load 从指定路径加载 JSON 配置文件并解析到 AppConfig 结构体中。
// 此处只做解析, 必需字段校验由各策略的 Validate 完成。
func Load(path string) (*AppConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &AppConfig{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	if len(cfg.Strategies) == 0 {
		return nil, fmt.Errorf("配置文件 %s 中没有找到任何策略", path)
	}

	if cfg.RateLimitIntervalMs <= 0 {
		cfg.RateLimitIntervalMs = 5000
	}

	return cfg, nil
}

// ApplyEnvCredentials 为未在文件中配置密钥的策略填充环境变量中的凭证。
func (c *AppConfig) ApplyEnvCredentials() {
	apiKey := os.Getenv("BUMPIN_API_KEY")
	secretKey := os.Getenv("BUMPIN_SECRET_KEY")
	for _, s := range c.Strategies {
		if s.APIKey == "" {
			s.APIKey = apiKey
		}
		if s.SecretKey == "" {
			s.SecretKey = secretKey
		}
	}
}
