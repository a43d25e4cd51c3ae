package parser

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// stripBOM 去掉模型回复开头的 BOM
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\uFEFF")
}

// extractJSONObject 从模型回复中取出 JSON 对象：优先取 ``` 代码块，否则取第一个括号配平的对象
// 字符串字面量内部的花括号不参与配平
func extractJSONObject(text string) string {
	if m := fencedJSONRe.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inStr:
			escaped = true
		case c == '"':
			inStr = !inStr
		case c == '{' && !inStr:
			level++
		case c == '}' && !inStr:
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}

	// 未配平时退回到最后一个 }
	if end := strings.LastIndex(text, "}"); end > start {
		return text[start : end+1]
	}
	return ""
}

// sanitizeJSON 把位于字符串字面量内部、但并非字符串结束的双引号转义成 \"
// 判断依据：下一个非空白字符是否是 :, ], }, 或 ,
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '"' && !escaped {
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j >= len(src) || src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}' {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false
		} else if c == '\\' && !escaped {
			escaped = true
			b.WriteByte(c)
		} else {
			// 字符串内的裸换行不是合法 JSON
			if inStr && (c == '\n' || c == '\r') {
				if c == '\n' {
					b.WriteString("\\n")
				}
				escaped = false
				continue
			}
			b.WriteByte(c)
			escaped = false
		}
	}
	out := b.String()
	if !utf8.ValidString(out) {
		out = strings.ToValidUTF8(out, "")
	}
	return out
}

var firstIntRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// parseScoreValue 把 JSON 中的 nota 转成整数；支持数字、数字字符串和 "85/100" 这类写法
func parseScoreValue(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return roundScore(t), true
	case int:
		return t, true
	case string:
		return parseScoreText(t)
	}
	return 0, false
}

// parseScoreText 取文本中的第一个数字
func parseScoreText(s string) (int, bool) {
	m := firstIntRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.Replace(m, ",", ".", 1)
	f, err := strconv.ParseFloat(m, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return roundScore(f), true
}

// roundScore 先限制到 [0,100] 再取整，超大值不会在转换时溢出
func roundScore(f float64) int {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f >= 100:
		return 100
	}
	return int(math.Round(f))
}

// toStringList 把 JSON 值规范化为字符串列表；字符串按 | 拆分
func toStringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(toText(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		out = splitPipeList(t)
	}
	return out
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func splitPipeList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
