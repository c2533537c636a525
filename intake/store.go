package intake

import (
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/imattdu/orbit-apm/model"
)

// Event 一行事件，Raw 是 kind 下面的对象
type Event struct {
	Kind model.Kind
	Raw  jsoniter.RawMessage
}

// Batch 一次 POST 收到的内容
type Batch struct {
	Path        string
	Header      http.Header
	Compressed  bool
	Metadata    jsoniter.RawMessage
	MetadataRaw []byte // 原始 metadata 行（不含换行）
	Events      []Event
	ReceivedAt  time.Time
}

// Store 保存收到的 batch，并发安全
type Store struct {
	mu      sync.Mutex
	batches []Batch
	notify  chan struct{}
}

func NewStore() *Store {
	return &Store{notify: make(chan struct{}, 1)}
}

func (s *Store) Add(b Batch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Batches 返回副本
func (s *Store) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.batches...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// Counts 按 kind 统计收到的事件数
func (s *Store) Counts() map[model.Kind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Kind]int)
	for _, b := range s.batches {
		for _, e := range b.Events {
			out[e.Kind]++
		}
	}
	return out
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.batches = nil
	s.mu.Unlock()
}

// WaitFor 等到至少收到 n 个 batch 或超时
func (s *Store) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if s.Len() >= n {
			return true
		}
		select {
		case <-s.notify:
		case <-deadline.C:
			return s.Len() >= n
		}
	}
}
