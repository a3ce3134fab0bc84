package kv

import (
	"fmt"
	"strings"
)

// Redis key pattern helpers
//
// Key pattern: yoga:{profile}:{key}
// Channel pattern: yoga:{profile}:storage_events

// SlotKey returns the Redis key for a storage slot.
// Pattern: yoga:{profile}:{key}
func SlotKey(profile, key string) string {
	return fmt.Sprintf("yoga:%s:%s", profile, key)
}

// SlotPrefix returns the namespace prefix shared by every slot of a profile.
// Pattern: yoga:{profile}:
func SlotPrefix(profile string) string {
	return fmt.Sprintf("yoga:%s:", profile)
}

// ChangeEventsChannel returns the Pub/Sub channel carrying change events.
// Pattern: yoga:{profile}:storage_events
func ChangeEventsChannel(profile string) string {
	return fmt.Sprintf("yoga:%s:storage_events", profile)
}

// CorruptedKey returns the backup key a corrupted payload is archived under.
// Pattern: {key}-corrupted-{unix_ms}
func CorruptedKey(key string, atMs int64) string {
	return fmt.Sprintf("%s-corrupted-%d", key, atMs)
}

// CorruptedPrefix returns the prefix shared by all backups of key.
func CorruptedPrefix(key string) string {
	return key + "-corrupted-"
}

// ParseCorruptedKey reports whether key is a backup key and, if so, the key
// it was archived from.
func ParseCorruptedKey(key string) (original string, ok bool) {
	i := strings.LastIndex(key, "-corrupted-")
	if i <= 0 {
		return "", false
	}
	for _, r := range key[i+len("-corrupted-"):] {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	if i+len("-corrupted-") == len(key) {
		return "", false
	}
	return key[:i], true
}

// escapeGlob escapes Redis SCAN MATCH metacharacters so a literal prefix can
// be used inside a pattern.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
