package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern 模式无法编译或不包含捕获组
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern 编译后的页面标识匹配规则
// 始终忽略大小写，使用第一个捕获组作为标识
type Pattern struct {
	rule string         // 原始规则文本
	re   *regexp.Regexp // 编译后的正则
}

// CompilePattern 编译匹配规则
// 规则语法错误或没有捕获组时返回 ErrInvalidPattern
func CompilePattern(rule string) (*Pattern, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, fmt.Errorf("%w: pattern is empty", ErrInvalidPattern)
	}

	re, err := regexp.Compile("(?i)" + rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%w: pattern %q has no capture group", ErrInvalidPattern, rule)
	}

	return &Pattern{rule: rule, re: re}, nil
}

// MustCompilePattern 编译规则，失败时panic，仅用于常量规则
func MustCompilePattern(rule string) *Pattern {
	p, err := CompilePattern(rule)
	if err != nil {
		panic(err)
	}
	return p
}

// String 返回原始规则文本
func (p *Pattern) String() string {
	return p.rule
}

// Extract 在页面文本中查找第一个匹配，返回去除首尾空白的第一捕获组
// 没有匹配、捕获组未参与匹配或内容为空时返回 ("", false)，
// 调用方据此使用页码兜底名称，避免生成没有主名的 ".pdf" 文件
func (p *Pattern) Extract(text string) (string, bool) {
	m := p.re.FindStringSubmatchIndex(text)
	if m == nil || m[2] < 0 {
		return "", false
	}

	id := strings.TrimSpace(text[m[2]:m[3]])
	if id == "" {
		return "", false
	}
	return id, true
}

// Extract 对给定文本应用模式，是 Pattern.Extract 的函数形式
func Extract(text string, p *Pattern) (string, bool) {
	if p == nil {
		return "", false
	}
	return p.Extract(text)
}
