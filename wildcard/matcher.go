// Package wildcard 实现字段名脱敏用的通配符匹配。
//
// 只支持 `*`（匹配零个或多个字符），不支持 `?`。默认忽略大小写，
// 以 `(?-i)` 开头的模式大小写敏感，`(?i)` 前缀显式声明忽略大小写。
package wildcard

import (
	"strings"
)

const (
	caseInsensitivePrefix = "(?i)"
	caseSensitivePrefix   = "(?-i)"
	wildcard              = "*"
)

// Matcher 是编译后的通配符模式，初始化后只读，可并发使用
type Matcher struct {
	raw        string
	ignoreCase bool
	parts      []part
}

// part 是模式里两个 * 之间的一段
type part struct {
	text    string
	atBegin bool // 前面有 *
	atEnd   bool // 后面有 *
}

// Compile 编译一个通配符模式，例如 `*secret*`、`(?-i)Secret`、`/foo/*/bar`
func Compile(pattern string) *Matcher {
	m := &Matcher{raw: pattern, ignoreCase: true}

	expr := pattern
	switch {
	case strings.HasPrefix(expr, caseSensitivePrefix):
		m.ignoreCase = false
		expr = expr[len(caseSensitivePrefix):]
	case strings.HasPrefix(expr, caseInsensitivePrefix):
		expr = expr[len(caseInsensitivePrefix):]
	}

	startsWild := strings.HasPrefix(expr, wildcard)
	endsWild := strings.HasSuffix(expr, wildcard)

	split := strings.Split(expr, wildcard)
	m.parts = make([]part, 0, len(split))
	for i, s := range split {
		if m.ignoreCase {
			s = strings.ToLower(s)
		}
		isFirst, isLast := i == 0, i == len(split)-1
		m.parts = append(m.parts, part{
			text:    s,
			atBegin: !isFirst || startsWild,
			atEnd:   !isLast || endsWild,
		})
	}
	return m
}

// CompileAll 编译一组模式，空串跳过
func CompileAll(patterns []string) []*Matcher {
	out := make([]*Matcher, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, Compile(p))
	}
	return out
}

// String 返回原始模式
func (m *Matcher) String() string {
	if m == nil {
		return ""
	}
	return m.raw
}

// Matches 判断 s 是否完整匹配模式
func (m *Matcher) Matches(s string) bool {
	if m == nil {
		return false
	}
	if m.ignoreCase {
		s = strings.ToLower(s)
	}
	offset := 0
	for _, p := range m.parts {
		idx := p.indexOf(s, offset)
		if idx < 0 {
			return false
		}
		offset = idx + len(p.text)
	}
	return true
}

// indexOf 在 s[offset:] 里按本段的锚定规则查找，返回绝对下标
func (p part) indexOf(s string, offset int) int {
	if offset > len(s) {
		return -1
	}
	switch {
	case p.atBegin && p.atEnd:
		i := strings.Index(s[offset:], p.text)
		if i < 0 {
			return -1
		}
		return offset + i
	case p.atEnd:
		if offset == 0 && strings.HasPrefix(s, p.text) {
			return 0
		}
		return -1
	case p.atBegin:
		start := len(s) - len(p.text)
		if start >= offset && s[start:] == p.text {
			return start
		}
		return -1
	default:
		if offset == 0 && s == p.text {
			return 0
		}
		return -1
	}
}

// AnyMatch 返回第一个匹配 s 的 Matcher，没有则返回 nil
func AnyMatch(matchers []*Matcher, s string) *Matcher {
	for _, m := range matchers {
		if m.Matches(s) {
			return m
		}
	}
	return nil
}

// IsAnyMatch 任一模式匹配即为 true
func IsAnyMatch(matchers []*Matcher, s string) bool {
	return AnyMatch(matchers, s) != nil
}
