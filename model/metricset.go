package model

// MetricSet 同一时间点采集的一组指标
type MetricSet struct {
	Timestamp int64             `json:"timestamp"`
	Samples   map[string]Sample `json:"samples"`
	Labels    Labels            `json:"tags,omitempty"`
}

type Sample struct {
	Value float64 `json:"value"`
}

// Add 追加一个样本，重复的名字覆盖
func (m *MetricSet) Add(name string, value float64) {
	if m.Samples == nil {
		m.Samples = make(map[string]Sample)
	}
	m.Samples[name] = Sample{Value: value}
}
