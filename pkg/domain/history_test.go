package domain

import (
	"fmt"
	"testing"
	"time"
)

func TestPushHistoryPrependsAndCaps(t *testing.T) {
	var queue []string
	for i := 1; i <= 6; i++ {
		queue = PushHistory(queue, fmt.Sprintf("e%d", i))
	}
	if len(queue) != HistoryCapacity {
		t.Fatalf("expected %d entries, got %d", HistoryCapacity, len(queue))
	}
	want := []string{"e6", "e5", "e4", "e3", "e2"}
	for i, w := range want {
		if queue[i] != w {
			t.Fatalf("position %d: want %s got %s (%v)", i, w, queue[i], queue)
		}
	}
	for _, e := range queue {
		if e == "e1" {
			t.Fatalf("oldest entry should have been evicted: %v", queue)
		}
	}
}

func TestPushHistoryDoesNotAliasInput(t *testing.T) {
	queue := make([]string, 2, 10)
	queue[0], queue[1] = "a", "b"
	out := PushHistory(queue, "c")
	out[1] = "mutated"
	if queue[0] != "a" || queue[1] != "b" {
		t.Fatalf("input modified: %v", queue)
	}
}

func TestPushHistoryOverlongInput(t *testing.T) {
	queue := []string{"1", "2", "3", "4", "5", "6", "7"}
	out := PushHistory(queue, "0")
	if len(out) != HistoryCapacity || out[0] != "0" || out[4] != "4" {
		t.Fatalf("unexpected queue %v", out)
	}
	if got := PushHistory(nil, "x"); len(got) != 1 || got[0] != "x" {
		t.Fatalf("unexpected queue from nil input %v", got)
	}
}

func TestDecodeHistoryDropsMalformed(t *testing.T) {
	when := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	good, err := EncodeHistoryEntry(HistoryEntry{HistoryID: "h1", EmployeeID: "E7", AssignDate: when})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	queue := []string{
		good,
		"not json",
		`{"historyId":"h2","assignDate":"2024-01-01T00:00:00Z"}`,
		`{"historyId":"h3","employeeId":"E1"}`,
		`[1,2]`,
		"",
	}
	entries := DecodeHistory(queue)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %+v", len(entries), entries)
	}
	if entries[0].EmployeeID != "E7" || !entries[0].AssignDate.Equal(when) || entries[0].HistoryID != "h1" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestEncodeHistoryEntryFieldNames(t *testing.T) {
	raw, err := EncodeHistoryEntry(HistoryEntry{HistoryID: "h", EmployeeID: "E", AssignDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"historyId":"h","employeeId":"E","assignDate":"2024-01-02T00:00:00Z"}`
	if raw != want {
		t.Fatalf("want %s got %s", want, raw)
	}
}
