package meta

import (
	"strings"
	"unicode"
)

const envPrefix = "${env."

// expandEnv replaces ${env.KEY} with lookup(KEY). A reference with an
// invalid key keeps its prefix literally and scanning resumes after it.
func expandEnv(value string, lookup func(key string) string) string {
	if !strings.Contains(value, envPrefix) {
		return value
	}
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(value[i:], envPrefix)
		if idx < 0 {
			b.WriteString(value[i:])
			break
		}
		b.WriteString(value[i : i+idx])
		keyStart := i + idx + len(envPrefix)
		keyEnd := strings.IndexByte(value[keyStart:], '}')
		if keyEnd < 0 {
			b.WriteString(value[i+idx:])
			break
		}
		key := value[keyStart : keyStart+keyEnd]
		if !isEnvKey(key) {
			b.WriteString(envPrefix)
			i = keyStart
			continue
		}
		if key != "" {
			b.WriteString(lookup(key))
		}
		i = keyStart + keyEnd + 1
	}
	return b.String()
}

func isEnvKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
