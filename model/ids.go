package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"go.uber.org/atomic"
)

// -------------------- ID 生成 --------------------

const (
	idBytes      = 8  // transaction / span / error
	traceIDBytes = 16 // trace
)

// NewID 生成 64 bit 的随机 ID（16 位 hex）
func NewID() string {
	return randomHex(idBytes)
}

// NewTraceID 生成 128 bit 的随机 trace ID（32 位 hex）
func NewTraceID() string {
	return randomHex(traceIDBytes)
}

var fallbackSeq atomic.Uint64

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fallbackID(n)
	}
	return hex.EncodeToString(b)
}

// crypto/rand 不可用时退化为时间 + 自增序号，仍保证进程内唯一
func fallbackID(n int) string {
	b := make([]byte, n)
	seed := uint64(time.Now().UnixNano())<<16 | fallbackSeq.Inc()&0xffff
	for i := range b {
		b[i] = byte(seed >> (8 * (i % 8)))
		if i%8 == 7 {
			seed = seed*6364136223846793005 + 1442695040888963407
		}
	}
	return hex.EncodeToString(b)
}

// -------------------- 时间 --------------------

// TimestampNow 当前时间，单位微秒
func TimestampNow() int64 {
	return Timestamp(time.Now())
}

// Timestamp 把 t 转成自 epoch 起的微秒数
func Timestamp(t time.Time) int64 {
	return t.UnixNano() / int64(time.Microsecond)
}

// DurationMillis 两个微秒时间戳之间的毫秒数
func DurationMillis(startMicros, endMicros int64) float64 {
	return float64(endMicros-startMicros) / 1000
}
