package agent

import "sync"

// 进程级默认实例，只给 main / CLI 这种最外层入口用，库代码应该显式传 *Agent
var (
	defaultMu    sync.RWMutex
	defaultAgent *Agent
)

// SetDefault 设置默认实例，返回之前的值
func SetDefault(a *Agent) *Agent {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultAgent
	defaultAgent = a
	return prev
}

// Default 未设置时为 nil
func Default() *Agent {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultAgent
}
