package services

import (
	"context"
	"testing"
	"time"
)

func TestNoticeLogDropsOldestBeyondCapacity(t *testing.T) {
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.FixedZone("IST", 3600))
	log := NewNoticeLog(2, func() time.Time { return at })
	ctx := context.Background()

	log.Notify(ctx, Notice{Level: NoticeInfo, Message: "first"})
	log.Notify(ctx, Notice{Level: NoticeInfo, Message: "second"})
	log.Notify(ctx, Notice{Level: NoticeError, Message: "third"})

	if peek := log.Peek(); len(peek) != 2 {
		t.Fatalf("expected capacity enforced, got %d", len(peek))
	}
	notices := log.Drain()
	if notices[0].Message != "second" || notices[1].Message != "third" {
		t.Fatalf("expected oldest notice dropped, got %+v", notices)
	}
	if !notices[0].At.Equal(at) || notices[0].At.Location() != time.UTC {
		t.Fatalf("expected UTC stamp, got %s", notices[0].At)
	}
	if len(log.Drain()) != 0 {
		t.Fatalf("expected drain to clear the log")
	}
}

func TestFormStateRecorderBindResetsControls(t *testing.T) {
	recorder := NewFormStateRecorder()
	ctx := context.Background()

	recorder.Bind(ctx, FormState{Product: sampleDetail("3.0"), CurrentVersion: "3.0"})
	recorder.SetFieldValue(ctx, FieldProductName, "draft name")
	recorder.SetFieldEnabled(ctx, FieldStatus, true)

	recorder.Bind(ctx, FormState{Product: sampleDetail("3.0"), CurrentVersion: "3.0"})
	if recorder.Value(FieldProductName) != "Home Contents" {
		t.Fatalf("expected committed name restored, got %q", recorder.Value(FieldProductName))
	}
	if recorder.Enabled(FieldStatus) {
		t.Fatalf("expected status disabled outside a draft")
	}
	if recorder.Value(FieldEffectiveDate) != "2024-01-01" {
		t.Fatalf("unexpected effective date %q", recorder.Value(FieldEffectiveDate))
	}
	snapshot := recorder.Snapshot()
	if snapshot.Binds != 2 {
		t.Fatalf("expected two binds, got %d", snapshot.Binds)
	}
}
