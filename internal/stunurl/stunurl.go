// Package stunurl parses the comma-separated STUN server list described
// in spec.md §6.
package stunurl

import "strings"

// MaxEntryLen is the maximum length of a single STUN entry, including a
// trailing NUL, per spec.md §6 ("each ≤ 64 bytes including trailing NUL").
const MaxEntryLen = 64

// Parse splits a comma-separated STUN server list, trimming surrounding
// whitespace and skipping empty entries. If input is empty or all
// whitespace, defaults is returned unchanged (the caller-supplied fallback
// list from spec.md §6).
//
// Entries longer than MaxEntryLen-1 bytes (leaving room for the trailing
// NUL the original C API required) are dropped rather than truncated,
// since silently truncating a server URL would point at the wrong host.
func Parse(input string, defaults []string) []string {
	if strings.TrimSpace(input) == "" {
		return append([]string(nil), defaults...)
	}

	var out []string
	for _, part := range strings.Split(input, ",") {
		entry := strings.TrimSpace(part)
		if entry == "" {
			continue
		}
		if len(entry)+1 > MaxEntryLen {
			continue
		}
		out = append(out, entry)
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	return out
}
