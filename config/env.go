package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/imattdu/orbit-apm/errorx"
)

const envPrefix = "ELASTIC_APM_"

// 环境变量名（不含前缀）
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvEnabled            = "ENABLED"
	EnvServiceName        = "SERVICE_NAME"
	EnvServiceVersion     = "SERVICE_VERSION"
	EnvServiceNodeName    = "SERVICE_NODE_NAME"
	EnvEnvironment        = "ENVIRONMENT"
	EnvHostname           = "HOSTNAME"
	EnvServerURL          = "SERVER_URL"
	EnvServerURLs         = "SERVER_URLS"
	EnvSecretToken        = "SECRET_TOKEN"
	EnvAPIKey             = "API_KEY"
	EnvServerTimeout      = "SERVER_TIMEOUT"
	EnvCompress           = "COMPRESS"
	EnvRUMEnabled         = "RUM_ENABLED"
	EnvFlushInterval      = "FLUSH_INTERVAL"
	EnvMaxBatchEventCount = "MAX_BATCH_EVENT_COUNT"
	EnvMaxQueueEventCount = "MAX_QUEUE_EVENT_COUNT"
	EnvMetricsInterval    = "METRICS_INTERVAL"
	EnvGlobalLabels       = "GLOBAL_LABELS"
	EnvSanitizeFieldNames = "SANITIZE_FIELD_NAMES"
	EnvMaxPropertyLength  = "MAX_PROPERTY_LENGTH"
	EnvLogLevel           = "LOG_LEVEL"
)

// LookupFunc 读取一个环境变量；测试里可以替换
type LookupFunc func(key string) (string, bool)

// ApplyEnv 用 os.LookupEnv 覆盖 c 中对应字段
func (c *Config) ApplyEnv() error {
	return c.ApplyLookup(os.LookupEnv)
}

// ApplyLookup 用 lookup 读取 ELASTIC_APM_* 并覆盖；空值视为未设置
func (c *Config) ApplyLookup(lookup LookupFunc) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	fail := func(name, raw string, err error) error {
		return errorx.Wrap(err, errorx.CodeConfig, errorx.WithService(errorx.ServiceConfig),
			errorx.WithField("env", envPrefix+name), errorx.WithField("value", raw))
	}

	strs := map[string]*string{
		EnvServiceName:     &c.ServiceName,
		EnvServiceVersion:  &c.ServiceVersion,
		EnvServiceNodeName: &c.ServiceNodeName,
		EnvEnvironment:     &c.Environment,
		EnvHostname:        &c.Hostname,
		EnvSecretToken:     &c.SecretToken,
		EnvAPIKey:          &c.APIKey,
		EnvLogLevel:        &c.LogLevel,
	}
	for name, dst := range strs {
		if v, ok := get(name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		EnvEnabled:    &c.Enabled,
		EnvCompress:   &c.Compress,
		EnvRUMEnabled: &c.RUMEnabled,
	}
	for name, dst := range bools {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fail(name, v, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		EnvMaxBatchEventCount: &c.MaxBatchEventCount,
		EnvMaxQueueEventCount: &c.MaxQueueEventCount,
		EnvMaxPropertyLength:  &c.MaxPropertyLength,
	}
	for name, dst := range ints {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fail(name, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		EnvFlushInterval:   &c.FlushInterval,
		EnvMetricsInterval: &c.MetricsInterval,
		EnvServerTimeout:   &c.ServerTimeout,
	}
	for name, dst := range durations {
		if v, ok := get(name); ok {
			d, err := ParseDuration(v)
			if err != nil {
				return fail(name, v, err)
			}
			*dst = d
		}
	}

	if v, ok := get(EnvServerURLs); ok {
		c.ServerURLs = SplitList(v)
	} else if v, ok := get(EnvServerURL); ok {
		c.ServerURLs = []string{v}
	}
	if v, ok := get(EnvSanitizeFieldNames); ok {
		c.SanitizeFieldNames = SplitList(v)
	}
	if v, ok := get(EnvGlobalLabels); ok {
		labels, err := ParseLabels(v)
		if err != nil {
			return fail(EnvGlobalLabels, v, err)
		}
		c.GlobalLabels = labels
	}
	return nil
}

// ParseDuration 支持 Go 的 duration 写法；纯数字按秒处理
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// SplitList 逗号分隔，去掉空白和空项
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLabels 解析 `k=v,k2=v2`，key 必须唯一且非空
func ParseLabels(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range SplitList(s) {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errorx.Newf(errorx.CodeConfig, "label %q is not in key=value form", kv)
		}
		if _, dup := out[k]; dup {
			return nil, errorx.Newf(errorx.CodeConfig, "duplicate label key %q", k)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
