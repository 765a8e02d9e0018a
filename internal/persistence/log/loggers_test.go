package log

import (
	"testing"
	"time"
)

func TestAuditLogger_RotatesHourlyAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	clock := time.Date(2024, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.Audit("bot.added", 70001, map[string]any{"owner": 0}); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if err := l.Audit("bot.updated", 70001, map[string]any{"kind": "owner"}); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.Audit("bot.erased", 70001, nil); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := AuditFiles(dir)
	if err != nil {
		t.Fatalf("AuditFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2 hourly files", files)
	}
	first, err := ReadAuditFile(files[0])
	if err != nil {
		t.Fatalf("ReadAuditFile: %v", err)
	}
	if len(first) != 2 || first[0].Kind != "bot.added" || first[1].Kind != "bot.updated" {
		t.Fatalf("first hour mismatch: %+v", first)
	}
	if first[0].ID == "" || first[0].ID == first[1].ID {
		t.Fatalf("ids must be unique: %q %q", first[0].ID, first[1].ID)
	}
	second, err := ReadAuditFile(files[1])
	if err != nil {
		t.Fatalf("ReadAuditFile: %v", err)
	}
	if len(second) != 1 || second[0].Entry != 70001 {
		t.Fatalf("second hour mismatch: %+v", second)
	}
}

func TestAuditLogger_ReopenAppendsFrame(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		l := NewAuditLogger(dir)
		l.w.now = func() time.Time { return clock }
		if err := l.Audit("bot.generated", uint32(70001+i), nil); err != nil {
			t.Fatalf("Audit: %v", err)
		}
		_ = l.Close()
	}
	files, _ := AuditFiles(dir)
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	got, err := ReadAuditFile(files[0])
	if err != nil {
		t.Fatalf("ReadAuditFile: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries=%d want 2", len(got))
	}
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	var l *AuditLogger
	if err := l.Audit("x", 1, nil); err != nil {
		t.Fatalf("nil Audit: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}
