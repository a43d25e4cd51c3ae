package tracing

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Kind 属性值的种类，决定截断长度
type Kind int

const (
	KindDefault Kind = iota
	KindSQL
	KindRedisKey
	KindJobDescription
	KindResume
)

var kindLimits = map[Kind]int{
	KindDefault:        200,
	KindSQL:            500,
	KindRedisKey:       100,
	KindJobDescription: 120,
	KindResume:         150,
}

// 属性名包含任意一个即视为个人信息
var piiKeys = []string{
	"email", "phone", "telefone", "password", "senha", "cpf",
	"address", "endereco", "endereço", "name", "nome", "secret", "token",
}

// Clip 按种类截断属性值
func Clip(kind Kind, s string) string {
	limit, ok := kindLimits[kind]
	if !ok {
		limit = kindLimits[KindDefault]
	}
	return Shorten(s, limit)
}

// String 生成字符串属性；属性名像个人信息时掩码，否则按默认长度截断
func String(key, value string) attribute.KeyValue {
	lower := strings.ToLower(key)
	for _, k := range piiKeys {
		if strings.Contains(lower, k) {
			return attribute.String(key, Mask(value))
		}
	}
	return attribute.String(key, Clip(KindDefault, value))
}

// Mask 只保留首尾字符：4 个字符以内各留 1 个，更长的各留 2 个
// "Ana" -> "A*a"，"maria@exemplo.com" -> "ma*************om"
func Mask(value string) string {
	r := []rune(value)
	switch n := len(r); {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(r[0]) + "*"
	default:
		keep := 2
		if n <= 4 {
			keep = 1
		}
		return string(r[:keep]) + strings.Repeat("*", n-2*keep) + string(r[n-keep:])
	}
}

// Shorten 超过 max 个字符时保留首尾、中间换成 "..."
func Shorten(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	side := (max - 3) / 2
	return string(r[:side]) + "..." + string(r[len(r)-side:])
}
