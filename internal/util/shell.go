package util

import (
	"sort"
	"strings"
)

// DeduplicatePath joins newParts ahead of existingPath, dropping empty and
// repeated components while preserving first-seen order.
func DeduplicatePath(newParts []string, existingPath string) string {
	seen := make(map[string]bool)
	var result []string

	add := func(part string) {
		part = strings.TrimSpace(part)
		if part != "" && !seen[part] {
			seen[part] = true
			result = append(result, part)
		}
	}

	for _, part := range newParts {
		add(part)
	}
	if existingPath != "" {
		for _, part := range strings.Split(existingPath, ":") {
			add(part)
		}
	}

	return strings.Join(result, ":")
}

// MergeEnv overlays overrides on a KEY=VALUE list. Keys already present in
// base keep their position; new keys are appended in sorted order so the
// result is deterministic.
func MergeEnv(base []string, overrides map[string]string) []string {
	result := make([]string, 0, len(base)+len(overrides))
	applied := make(map[string]bool, len(overrides))

	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if v, override := overrides[key]; override {
			if applied[key] {
				continue
			}
			applied[key] = true
			result = append(result, key+"="+v)
			continue
		}
		result = append(result, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !applied[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = append(result, k+"="+overrides[k])
	}

	return result
}

// ShellQuote wraps s in single quotes, escaping embedded single quotes.
func ShellQuote(s string) string {
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// ShellEscape quotes s only when the shell would otherwise split or expand it.
func ShellEscape(s string) string {
	if needsQuoting(s) {
		return ShellQuote(s)
	}
	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " \t\n\"'$\\`|&;()<>*?[]#~!")
}
