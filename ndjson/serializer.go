// Package ndjson 把一个 batch 编码成 intake v2 的 newline-delimited JSON：
//
//	{"metadata":{...}}
//	{"transaction":{...}}
//	{"span":{...}}
//
// metadata 行只构造一次并缓存。每个事件先过 filter.Set，再在副本上做脱敏和截断，
// 单个事件编码失败只跳过该事件。
package ndjson

import (
	"bytes"
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/imattdu/orbit-apm/errorx"
	"github.com/imattdu/orbit-apm/filter"
	"github.com/imattdu/orbit-apm/logx"
	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/wildcard"
)

// ContentType intake 接口要求的请求类型
const ContentType = "application/x-ndjson"

var api = jsoniter.ConfigCompatibleWithStandardLibrary

type Options struct {
	Metadata          model.Metadata
	Sanitize          []*wildcard.Matcher
	MaxPropertyLength int // <=0 不截断
	Logger            logx.Logger
}

type Serializer struct {
	metadata model.Metadata
	sanitize []*wildcard.Matcher
	maxLen   int
	logger   logx.Logger

	metaOnce sync.Once
	metaLine []byte
	metaErr  error
}

func New(opts Options) *Serializer {
	return &Serializer{
		metadata: opts.Metadata,
		sanitize: opts.Sanitize,
		maxLen:   opts.MaxPropertyLength,
		logger:   logx.OrNop(opts.Logger),
	}
}

// Payload 一次 Encode 的结果
type Payload struct {
	Body     []byte
	Events   int // 写进 Body 的事件数
	Filtered int // 被过滤器丢弃
	Failed   int // 编码失败被跳过
}

// MetadataLine 返回缓存的 {"metadata":...}\n
func (s *Serializer) MetadataLine() ([]byte, error) {
	s.metaOnce.Do(func() {
		md := s.metadata
		md.Service.Name = s.trunc(md.Service.Name)
		md.Service.Version = s.trunc(md.Service.Version)
		md.Service.Environment = s.trunc(md.Service.Environment)
		md.System.Hostname = s.trunc(md.System.Hostname)
		md.Labels = s.labels(md.Labels)
		s.metaLine, s.metaErr = line(model.KindMetadata, md)
		if s.metaErr != nil {
			s.metaErr = errorx.Wrap(s.metaErr, errorx.CodeSerialize,
				errorx.WithService(errorx.ServiceSerializer), errorx.WithField("kind", string(model.KindMetadata)))
		}
	})
	return s.metaLine, s.metaErr
}

// Encode 过滤并编码整个 batch。metadata 编码失败时返回 error，此时整个 batch 不可发送。
// filters 可以为 nil。
func (s *Serializer) Encode(ctx context.Context, batch []model.Event, filters *filter.Set) (Payload, error) {
	var p Payload

	meta, err := s.MetadataLine()
	if err != nil {
		return p, err
	}

	var buf bytes.Buffer
	buf.Grow(len(meta) * (len(batch) + 1))
	buf.Write(meta)

	for _, e := range batch {
		if e == nil {
			continue
		}
		kind := e.Kind()
		out, ok := filters.Apply(ctx, e)
		if !ok {
			p.Filtered++
			continue
		}

		b, err := s.EncodeEvent(out)
		if err != nil {
			p.Failed++
			s.logger.Warn(ctx, logx.TagSerialize, err, logx.Kind, string(kind))
			continue
		}
		buf.Write(b)
		p.Events++
	}

	p.Body = buf.Bytes()
	return p, nil
}

// EncodeEvent 编码单个事件为一行（带换行符），不执行过滤
func (s *Serializer) EncodeEvent(e model.Event) ([]byte, error) {
	kind := e.Kind()
	b, err := line(kind, s.prepare(e))
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeSerialize,
			errorx.WithService(errorx.ServiceSerializer), errorx.WithField("kind", string(kind)))
	}
	return b, nil
}

// line 编码 {"<kind>":v}\n
func line(kind model.Kind, v any) ([]byte, error) {
	stream := api.BorrowStream(nil)
	defer api.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField(string(kind))
	stream.WriteVal(v)
	stream.WriteObjectEnd()
	stream.WriteRaw("\n")
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}
