// Package redaction masks credentials before they reach logs.
// The gateway handles API keys and channel tokens on every call path,
// so log lines are scrubbed by default.
package redaction

import (
	"regexp"
	"strings"
	"sync"
)

// Config holds redaction configuration.
type Config struct {
	// Enabled controls whether redaction is active.
	Enabled bool `json:"enabled"`

	// CustomPatterns allows additional regex patterns to redact.
	CustomPatterns []string `json:"custom_patterns,omitempty"`

	// Replacement is the string used to replace sensitive data.
	Replacement string `json:"replacement"`
}

// DefaultConfig returns the default redaction configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Replacement: "[REDACTED]",
	}
}

// builtin patterns. Keyed assignments keep capture-group handling uniform:
// when a pattern has capture groups, only the captured content is replaced.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[=:]\s*['"]?([a-zA-Z0-9_\-]{16,})['"]?`),
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-\.]{16,})`),
	regexp.MustCompile(`(?i)(auth[_-]?token|access[_-]?token|refresh[_-]?token)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{16,})['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?([^'"\s]{4,})['"]?`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
	regexp.MustCompile(`"(?:api_key|apikey|secret|password|token)"\s*:\s*"([^"]+)"`),
}

var sensitiveKeyParts = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api_secret",
	"secret", "private_key",
	"token", "credential",
}

// Redactor scrubs sensitive data from strings and log fields.
type Redactor struct {
	config Config
	custom []*regexp.Regexp
	mu     sync.RWMutex
}

// NewRedactor creates a Redactor with the given configuration.
// Invalid custom patterns are skipped.
func NewRedactor(config Config) *Redactor {
	r := &Redactor{config: config}
	for _, pattern := range config.CustomPatterns {
		re, err := regexp.Compile(pattern)
		if err == nil {
			r.custom = append(r.custom, re)
		}
	}
	return r
}

// Redact applies all redaction rules to the input string.
func (r *Redactor) Redact(input string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.config.Enabled {
		return input
	}

	result := input
	for _, re := range builtinPatterns {
		result = re.ReplaceAllStringFunc(result, func(match string) string {
			submatches := re.FindStringSubmatch(match)
			if len(submatches) <= 1 {
				return r.config.Replacement
			}
			redacted := match
			for i := len(submatches) - 1; i >= 1; i-- {
				if submatches[i] != "" {
					redacted = strings.Replace(redacted, submatches[i], r.config.Replacement, 1)
				}
			}
			return redacted
		})
	}
	for _, re := range r.custom {
		result = re.ReplaceAllString(result, r.config.Replacement)
	}
	return result
}

// RedactFields redacts sensitive values in a log field map. Keys whose
// names suggest credentials are replaced wholesale; string values are
// scrubbed recursively.
func (r *Redactor) RedactFields(fields map[string]any) map[string]any {
	r.mu.RLock()
	enabled := r.config.Enabled
	replacement := r.config.Replacement
	r.mu.RUnlock()

	if !enabled {
		return fields
	}

	result := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(strings.ToLower(k)) {
			result[k] = replacement
			continue
		}
		switch val := v.(type) {
		case string:
			result[k] = r.Redact(val)
		case map[string]any:
			result[k] = r.RedactFields(val)
		default:
			result[k] = v
		}
	}
	return result
}

// SetEnabled enables or disables redaction at runtime.
func (r *Redactor) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Enabled = enabled
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

var (
	globalMu       sync.RWMutex
	globalRedactor = NewRedactor(DefaultConfig())
)

// Redact applies redaction using the global redactor.
func Redact(input string) string {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRedactor.Redact(input)
}

// RedactFields redacts fields using the global redactor.
func RedactFields(fields map[string]any) map[string]any {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRedactor.RedactFields(fields)
}

// SetGlobalConfig replaces the configuration of the global redactor.
func SetGlobalConfig(config Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRedactor = NewRedactor(config)
}
