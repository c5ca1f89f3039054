package mediafmt

import "strings"

// MatchGlob сравнивает имя с шаблоном, в котором '*' соответствует любой
// последовательности символов. Сравнение без учета регистра.
func MatchGlob(pattern, name string) bool {
	pattern = strings.ToLower(pattern)
	name = strings.ToLower(name)

	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}

	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	pos := len(parts[0])
	last := len(parts) - 1
	for i := 1; i < last; i++ {
		if parts[i] == "" {
			continue
		}
		idx := strings.Index(name[pos:], parts[i])
		if idx < 0 {
			return false
		}
		pos += idx + len(parts[i])
	}
	return len(name)-pos >= len(parts[last]) && strings.HasSuffix(name, parts[last])
}
