package normalize

import (
	"strings"
	"unicode"
)

// Command 保存一条指令的规范化结果。Canonical 为小写形式，作为缓存键与
// 规则匹配输入；Original 保留大小写，供符号提取使用。两者的空白与货币
// 符号处理保持一致。
type Command struct {
	Original  string
	Canonical string
}

// Normalize 将原始输入规范化。纯函数，无失败路径：空串或乱码同样是
// 合法的规范化结果，是否拒绝由后续层级决定。满足幂等性。
func Normalize(raw string) Command {
	cleaned := collapse(raw)
	cleaned = glueCurrency(cleaned)
	cleaned = strings.TrimRight(cleaned, ".!?,;")
	cleaned = strings.TrimSpace(cleaned)

	return Command{
		Original:  cleaned,
		Canonical: strings.ToLower(cleaned),
	}
}

// collapse 去除首尾空白并将内部连续空白压缩为单个空格。
func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte(' ')
			inSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// glueCurrency 将货币符号与其后的数字粘合，例如 "$ 500" → "$500"。
func glueCurrency(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)
		if isCurrency(r) && i+2 < len(runes) && runes[i+1] == ' ' && unicode.IsDigit(runes[i+2]) {
			i++ // 跳过符号与数字之间的空格
		}
	}
	return b.String()
}

func isCurrency(r rune) bool {
	return r == '$' || r == '€' || r == '£' || r == '¥'
}
