package media

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore/blobstoretest"
)

const mib = 1024 * 1024

func TestSummarize_Thresholds(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		near, at   bool
		hasMessage bool
	}{
		{"empty", 0, false, false, false},
		// 80% of 1 GiB is 858993459.2 bytes
		{"just under warn", 858993459, false, false, false},
		{"at warn", 858993460, true, false, true},
		{"just under quota", QuotaBytes - 1, true, false, true},
		{"exactly quota", QuotaBytes, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := summarize(tt.total, 1)
			if u.IsNearLimit != tt.near || u.IsAtLimit != tt.at {
				t.Fatalf("near=%v at=%v, want near=%v at=%v", u.IsNearLimit, u.IsAtLimit, tt.near, tt.at)
			}
			if (u.Message != nil) != tt.hasMessage {
				t.Fatalf("Message = %v", u.Message)
			}
		})
	}
}

func TestSummarize_JustUnderQuotaRoundsTo100ButIsNotAtLimit(t *testing.T) {
	u := summarize(QuotaBytes-1, 1)
	if u.UsagePercent != 100 {
		t.Fatalf("UsagePercent = %v, want 100 after rounding", u.UsagePercent)
	}
	if u.IsAtLimit {
		t.Fatal("flags must use the exact ratio")
	}
}

func TestSummarize_Messages(t *testing.T) {
	near := summarize(850*mib, 3)
	if near.Message == nil || *near.Message != "Let op: 83% van gratis opslag gebruikt." {
		t.Fatalf("near message = %v", near.Message)
	}
	at := summarize(QuotaBytes, 3)
	if at.Message == nil || *at.Message != "Opslaglimiet bereikt! Verwijder oude afbeeldingen." {
		t.Fatalf("at message = %v", at.Message)
	}
}

func TestGetUsage_OverQuotaScenario(t *testing.T) {
	mem := blobstoretest.NewMemory()
	mem.SeedSized("images/a.jpg", 400*mib, "image/jpeg")
	mem.SeedSized("images/b.jpg", 400*mib, "image/jpeg")
	mem.SeedSized("images/c.jpg", 300*mib, "image/jpeg")

	u := NewUsageReporter(mem, nil, nil).GetUsage(context.Background())
	if u.TotalBytes != 1100*mib || u.ObjectCount != 3 {
		t.Fatalf("total=%d count=%d", u.TotalBytes, u.ObjectCount)
	}
	if !u.IsAtLimit || !u.IsNearLimit {
		t.Fatalf("near=%v at=%v", u.IsNearLimit, u.IsAtLimit)
	}
	if math.Abs(u.UsagePercent-107.42) > 0.001 {
		t.Fatalf("UsagePercent = %v, want 107.42", u.UsagePercent)
	}
	if u.TotalMB != 1100 || u.LimitMB != 1024 {
		t.Fatalf("TotalMB=%v LimitMB=%v", u.TotalMB, u.LimitMB)
	}
}

type spyUsageMetrics struct {
	bytes   int64
	objects int
}

func (s *spyUsageMetrics) SetBlobUsage(b int64, n int) { s.bytes, s.objects = b, n }

func TestGetUsage_Paginates(t *testing.T) {
	mem := blobstoretest.NewMemory()
	for i := 0; i < 2500; i++ {
		mem.Seed(fmt.Sprintf("images/%04d.png", i), []byte("x"), "image/png")
	}
	m := &spyUsageMetrics{}
	u := NewUsageReporter(mem, nil, m).GetUsage(context.Background())
	if u.ObjectCount != 2500 || u.TotalBytes != 2500 {
		t.Fatalf("count=%d total=%d", u.ObjectCount, u.TotalBytes)
	}
	lists := 0
	for _, c := range mem.Calls {
		if c == "list:" {
			lists++
		}
	}
	if lists != 3 {
		t.Fatalf("list calls = %d, want 3", lists)
	}
	if m.bytes != 2500 || m.objects != 2500 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestGetUsage_ErrorReturnsZero(t *testing.T) {
	mem := blobstoretest.NewMemory()
	mem.Seed("images/a.jpg", make([]byte, 10), "image/jpeg")
	mem.FailList = blobstoretest.ErrInjected

	u := NewUsageReporter(mem, nil, nil).GetUsage(context.Background())
	if u.TotalBytes != 0 || u.ObjectCount != 0 || u.UsagePercent != 0 || u.IsNearLimit || u.IsAtLimit || u.Message != nil {
		t.Fatalf("usage = %+v, want zeros", u)
	}
	if u.LimitMB != 1024 {
		t.Fatalf("LimitMB = %d", u.LimitMB)
	}
}

func TestGetUsage_NoStorage(t *testing.T) {
	u := NewUsageReporter(nil, nil, nil).GetUsage(context.Background())
	if u.TotalBytes != 0 || u.LimitMB != 1024 {
		t.Fatalf("usage = %+v", u)
	}
}
