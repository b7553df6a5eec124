package tracing

import (
	"strings"
)

// span 属性与日志预览的长度上限，单位 rune
const (
	DefaultMaxLength    = 200
	MaxSQLLength        = 500
	MaxRedisKeyLength   = 100
	MaxResumePreviewLen = 150
)

// 属性名包含这些片段时，值按个人信息掩码
var sensitiveKeyParts = []string{
	"name", "姓名",
	"email", "phone", "电话",
	"address", "地址",
	"id_card", "身份证",
	"password", "secret", "token", "api_key",
}

// SafeAttributeValue 返回可写入 span 的属性值：敏感字段掩码，其余按 maxLength 截断
func SafeAttributeValue(key, value string, maxLength int) string {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 保留首尾字符，其余替换为 *；邮箱只掩码 @ 之前的部分
func MaskPII(value string) string {
	if at := strings.LastIndex(value, "@"); at > 0 {
		return maskRunes(value[:at]) + value[at:]
	}
	return maskRunes(value)
}

func maskRunes(value string) string {
	runes := []rune(value)
	switch n := len(runes); {
	case n == 0:
		return ""
	case n <= 2:
		return string(runes[0]) + strings.Repeat("*", n-1)
	default:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	}
}

// TruncateString 超过 maxLength 个 rune 时截断并以 "..." 结尾，结果不超过 maxLength
func TruncateString(s string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}

// SafeSQL db.statement 属性
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 锁与缓存键的日志字段
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisKeyLength)
}

// ResumePreview 简历文本的日志预览，换行压成空格
func ResumePreview(text string) string {
	return TruncateString(strings.Join(strings.Fields(text), " "), MaxResumePreviewLen)
}
