package media

import (
	"context"
	"fmt"
	"math"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/log"
)

const (
	// QuotaBytes is the storage allowance usage is measured against, 1 GiB.
	QuotaBytes = 1 << 30
	// WarnRatio is the fraction of the quota at which the admin is warned.
	WarnRatio = 0.8

	bytesPerMB = 1024 * 1024
)

// Usage is the storage summary shown on the admin dashboard.
type Usage struct {
	TotalBytes   int64   `json:"totalSize"`
	TotalMB      float64 `json:"totalSizeMB"`
	LimitMB      int64   `json:"limitMB"`
	UsagePercent float64 `json:"usagePercent"`
	ObjectCount  int     `json:"blobCount"`
	IsNearLimit  bool    `json:"isNearLimit"`
	IsAtLimit    bool    `json:"isAtLimit"`
	Message      *string `json:"message"`
}

// UsageMetrics receives the latest totals. Implemented by metrics.ServerMetrics.
type UsageMetrics interface {
	SetBlobUsage(bytes int64, objects int)
}

type nopUsageMetrics struct{}

func (nopUsageMetrics) SetBlobUsage(int64, int) {}

type UsageReporter struct {
	blobs   blobstore.Store
	logger  log.Logger
	metrics UsageMetrics
}

func NewUsageReporter(blobs blobstore.Store, logger log.Logger, m UsageMetrics) *UsageReporter {
	if logger == nil {
		logger = log.Nop()
	}
	if m == nil {
		m = nopUsageMetrics{}
	}
	return &UsageReporter{blobs: blobs, logger: logger, metrics: m}
}

// emptyUsage is reported when storage is not configured or cannot be listed.
func emptyUsage() Usage {
	return Usage{LimitMB: QuotaBytes / bytesPerMB}
}

// GetUsage sums the size of every stored object, one page of
// blobstore.DefaultPageSize at a time. It never fails: any error yields an
// all-zero report.
func (r *UsageReporter) GetUsage(ctx context.Context) Usage {
	if r.blobs == nil {
		return emptyUsage()
	}

	var (
		total  int64
		count  int
		cursor string
	)
	for {
		page, err := r.blobs.List(ctx, "", cursor, blobstore.DefaultPageSize)
		if err != nil {
			r.logger.Warn(ctx, "storage usage check failed", "err", err)
			return emptyUsage()
		}
		for _, o := range page.Objects {
			total += o.Size
			count++
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	r.metrics.SetBlobUsage(total, count)
	return summarize(total, count)
}

func summarize(total int64, count int) Usage {
	ratio := float64(total) / float64(QuotaBytes)
	percent := ratio * 100

	u := Usage{
		TotalBytes:   total,
		TotalMB:      round2(float64(total) / bytesPerMB),
		LimitMB:      QuotaBytes / bytesPerMB,
		UsagePercent: round2(percent),
		ObjectCount:  count,
		IsNearLimit:  ratio >= WarnRatio,
		IsAtLimit:    ratio >= 1,
	}

	switch {
	case u.IsAtLimit:
		msg := "Opslaglimiet bereikt! Verwijder oude afbeeldingen."
		u.Message = &msg
	case u.IsNearLimit:
		msg := fmt.Sprintf("Let op: %d%% van gratis opslag gebruikt.", int(math.Round(percent)))
		u.Message = &msg
	}
	return u
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
