package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// HistoryCapacity bounds the number of assignment events kept on an asset.
const HistoryCapacity = 5

// HistoryEntry records a single assignment of an asset to an employee.
type HistoryEntry struct {
	HistoryID  string    `json:"historyId"`
	EmployeeID string    `json:"employeeId"`
	AssignDate time.Time `json:"assignDate"`
}

// EncodeHistoryEntry serializes an entry into the string form stored in
// Asset.HistoryQueue.
func EncodeHistoryEntry(entry HistoryEntry) (string, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PushHistory prepends entry to queue and truncates the tail to
// HistoryCapacity. The returned slice never shares storage with queue.
func PushHistory(queue []string, entry string) []string {
	size := len(queue) + 1
	if size > HistoryCapacity {
		size = HistoryCapacity
	}
	out := make([]string, 0, size)
	out = append(out, entry)
	for _, e := range queue {
		if len(out) == size {
			break
		}
		out = append(out, e)
	}
	return out
}

// DecodeHistoryEntry parses one serialized entry. Entries that are not JSON
// objects, lack an employee, or carry no assignment date are reported as
// malformed.
func DecodeHistoryEntry(raw string) (HistoryEntry, bool) {
	var entry HistoryEntry
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return HistoryEntry{}, false
	}
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return HistoryEntry{}, false
	}
	if strings.TrimSpace(entry.EmployeeID) == "" || entry.AssignDate.IsZero() {
		return HistoryEntry{}, false
	}
	return entry, true
}

// DecodeHistory decodes every well formed entry of queue, preserving order
// and silently dropping malformed ones.
func DecodeHistory(queue []string) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(queue))
	for _, raw := range queue {
		if entry, ok := DecodeHistoryEntry(raw); ok {
			out = append(out, entry)
		}
	}
	return out
}
