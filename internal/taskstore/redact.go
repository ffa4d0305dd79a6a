package taskstore

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/deadwavewave/wavetask/internal/model"
)

// sensitiveKeyRe matches detail keys that must never reach a log sink
// unredacted (§7 "Sensitive data").
var sensitiveKeyRe = regexp.MustCompile(`(?i)password|token|apikey|secret`)

// maxDetailsBytes bounds a single log entry's details bag (§7 "Context
// truncation").
const maxDetailsBytes = 4096

// RedactAndTruncate walks a LogEntry's Details bag, replacing sensitive
// values with "[REDACTED]" and collapsing oversized bags to a truncation
// marker, before the entry is appended to the task's log.
func RedactAndTruncate(entry model.LogEntry) model.LogEntry {
	if entry.Details == nil {
		return entry
	}
	redacted := redactMap(entry.Details)
	entry.Details = redacted

	encoded, err := json.Marshal(redacted)
	if err == nil && len(encoded) > maxDetailsBytes {
		entry.Details = map[string]any{
			"_truncated":    true,
			"_originalSize": len(encoded),
		}
	}
	return entry
}

func redactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveKeyRe.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			out[k] = redactMap(val)
		case string:
			out[k] = val
		default:
			out[k] = v
		}
	}
	return out
}

// RedactMessage applies the same key-based rule to a free-text message
// that happens to carry "key=value" pairs (e.g. shell command output
// captured verbatim into a log line).
func RedactMessage(msg string) string {
	parts := strings.Fields(msg)
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 && sensitiveKeyRe.MatchString(kv[0]) {
			parts[i] = kv[0] + "=[REDACTED]"
		}
	}
	return strings.Join(parts, " ")
}
