package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CommandPrefix 是斜杠命令的前缀。
const CommandPrefix = "/"

// Invocation 是一行斜杠命令拆分后的结果。
type Invocation struct {
	Name  string   // 命令名，已转小写，不含前缀
	Args  []string // 按空白拆分的参数
	Input string   // 命令名之后的原始参数文本
}

// Tokens 返回交给 Cobra 的参数列表（命令名在前）。
func (inv Invocation) Tokens() []string {
	tokens := make([]string, 0, len(inv.Args)+1)
	tokens = append(tokens, inv.Name)
	return append(tokens, inv.Args...)
}

// ParseInvocation 识别以 CommandPrefix 开头的输入。
// 前缀后为空或紧跟空白时不视为命令，例如 "/" 与 "/ route"。
func ParseInvocation(text string) (Invocation, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), CommandPrefix)
	if !ok || rest == "" {
		return Invocation{}, false
	}
	if r, _ := utf8.DecodeRuneInString(rest); unicode.IsSpace(r) {
		return Invocation{}, false
	}

	name, input := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, input = rest[:i], rest[i:]
	}
	return Invocation{
		Name:  strings.ToLower(name),
		Args:  strings.Fields(input),
		Input: strings.TrimSpace(input),
	}, true
}
