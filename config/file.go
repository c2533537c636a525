package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/imattdu/orbit-apm/errorx"
)

// ApplyFile 读取 YAML 文件覆盖 c；文件里没写的字段保持原值
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithField("file", path))
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errorx.Wrap(err, errorx.CodeConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithField("file", path))
	}
	return nil
}

// Load 按 默认值 < 文件 < 环境变量 < Option 的顺序组装配置。
// path 为空时读取 ELASTIC_APM_CONFIG_FILE。
func Load(path string, opts ...Option) (Config, error) {
	return load(path, os.LookupEnv, opts...)
}

func load(path string, lookup LookupFunc, opts ...Option) (Config, error) {
	cfg := Default()

	if path == "" {
		if v, ok := lookup(envPrefix + EnvConfigFile); ok {
			path = v
		}
	}
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyLookup(lookup); err != nil {
		return cfg, err
	}
	cfg.Apply(opts...)
	if err := cfg.Normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
