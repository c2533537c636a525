package ndjson

import (
	"sort"
	"unicode/utf8"

	"github.com/imattdu/orbit-apm/model"
	"github.com/imattdu/orbit-apm/wildcard"
)

// Redacted 替换敏感字段值
const Redacted = "[REDACTED]"

// prepare 返回可以直接编码的副本：入队的事件本身不修改
func (s *Serializer) prepare(e model.Event) any {
	switch v := e.(type) {
	case *model.Transaction:
		cp := *v
		cp.ID = s.trunc(cp.ID)
		cp.TraceID = s.trunc(cp.TraceID)
		cp.ParentID = s.trunc(cp.ParentID)
		cp.Name = s.trunc(cp.Name)
		cp.Type = s.trunc(cp.Type)
		cp.Result = s.trunc(cp.Result)
		cp.Context = s.context(cp.Context)
		return &cp
	case *model.Span:
		cp := *v
		cp.ID = s.trunc(cp.ID)
		cp.TransactionID = s.trunc(cp.TransactionID)
		cp.TraceID = s.trunc(cp.TraceID)
		cp.ParentID = s.trunc(cp.ParentID)
		cp.Name = s.trunc(cp.Name)
		cp.Type = s.trunc(cp.Type)
		cp.Subtype = s.trunc(cp.Subtype)
		cp.Action = s.trunc(cp.Action)
		if cp.Context != nil {
			sc := *cp.Context
			if sc.HTTP != nil {
				h := *sc.HTTP
				h.URL = s.trunc(h.URL)
				h.Method = s.trunc(h.Method)
				sc.HTTP = &h
			}
			sc.Labels = s.labels(sc.Labels)
			cp.Context = &sc
		}
		return &cp
	case *model.Error:
		cp := *v
		cp.ID = s.trunc(cp.ID)
		cp.TraceID = s.trunc(cp.TraceID)
		cp.TransactionID = s.trunc(cp.TransactionID)
		cp.ParentID = s.trunc(cp.ParentID)
		cp.Culprit = s.trunc(cp.Culprit)
		if cp.Exception != nil {
			ex := *cp.Exception
			ex.Type = s.trunc(ex.Type)
			cp.Exception = &ex
		}
		cp.Context = s.context(cp.Context)
		return &cp
	case *model.MetricSet:
		cp := *v
		cp.Labels = s.labels(cp.Labels)
		return &cp
	default:
		return e
	}
}

func (s *Serializer) context(c *model.Context) *model.Context {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Request != nil {
		req := *c.Request
		req.Method = s.trunc(req.Method)
		req.URL.Full = s.trunc(req.URL.Full)
		req.URL.Hostname = s.trunc(req.URL.Hostname)
		req.URL.Pathname = s.trunc(req.URL.Pathname)
		req.URL.Protocol = s.trunc(req.URL.Protocol)
		req.URL.Raw = s.trunc(req.URL.Raw)
		req.URL.Search = s.trunc(req.URL.Search)
		req.Headers = s.sanitizeMap(req.Headers)
		req.Cookies = s.sanitizeMap(req.Cookies)
		cp.Request = &req
	}
	if c.Response != nil {
		resp := *c.Response
		resp.Headers = s.sanitizeMap(resp.Headers)
		cp.Response = &resp
	}
	if c.User != nil {
		u := *c.User
		u.ID = s.trunc(u.ID)
		u.Username = s.trunc(u.Username)
		u.Email = s.trunc(u.Email)
		cp.User = &u
	}
	cp.Labels = s.labels(c.Labels)
	return &cp
}

// sanitizeMap 复制 m，key 命中脱敏模式的值替换成 Redacted。
// 截断后 key 相同时按原 key 字典序保留第一个，其中任一个命中脱敏则值为 Redacted。
func (s *Serializer) sanitizeMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for _, k := range sortedKeys(m) {
		redact := wildcard.IsAnyMatch(s.sanitize, k)
		tk := s.trunc(k)
		if _, dup := out[tk]; dup {
			if redact {
				out[tk] = Redacted
			}
			continue
		}
		if redact {
			out[tk] = Redacted
		} else {
			out[tk] = s.trunc(m[k])
		}
	}
	return out
}

// labels 只截断不脱敏；截断后 key 相同时保留字典序第一个
func (s *Serializer) labels(l model.Labels) model.Labels {
	if l == nil {
		return nil
	}
	out := make(model.Labels, len(l))
	for _, k := range sortedKeys(l) {
		tk := s.trunc(k)
		if _, dup := out[tk]; dup {
			continue
		}
		out[tk] = s.trunc(l[k])
	}
	return out
}

func sortedKeys[M ~map[string]string](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// trunc 按 rune 截断到 maxLen
func (s *Serializer) trunc(v string) string {
	if s.maxLen <= 0 || len(v) <= s.maxLen {
		return v
	}
	if utf8.RuneCountInString(v) <= s.maxLen {
		return v
	}
	n := 0
	for i := range v {
		if n == s.maxLen {
			return v[:i]
		}
		n++
	}
	return v
}
