package adminhttp

import (
	"context"

	"github.com/keithlinneman/smallbiz-web/internal/blobstore"
	"github.com/keithlinneman/smallbiz-web/internal/content"
	"github.com/keithlinneman/smallbiz-web/internal/media"
)

// ContentStore is the part of content.Store the admin API uses.
type ContentStore interface {
	GetContent(ctx context.Context) (*content.Document, error)
	SaveContent(ctx context.Context, doc *content.Document) error
	Backend() content.Source
	ContentKey() string
	Meta() (content.Meta, bool)
}

type Uploader interface {
	Upload(ctx context.Context, req media.UploadRequest) (media.UploadResult, error)
}

type UsageReporter interface {
	GetUsage(ctx context.Context) media.Usage
}

// Metrics receives login outcomes. Implemented by metrics.ServerMetrics.
type Metrics interface {
	IncAdminLogin(result string)
}

type nopMetrics struct{}

func (nopMetrics) IncAdminLogin(string) {}

type loginRequest struct {
	Password string `json:"password"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// StorageDebugResponse describes the active persistence setup for the
// dashboard's storage panel.
type StorageDebugResponse struct {
	Backend          content.Source     `json:"backend"`
	BucketConfigured bool               `json:"bucketConfigured"`
	ContentKey       string             `json:"contentKey,omitempty"`
	LastLoad         *content.Meta      `json:"lastLoad,omitempty"`
	ObjectCount      int                `json:"blobCount"`
	Objects          []blobstore.Object `json:"blobs"`
	Truncated        bool               `json:"truncated"`
	Error            string             `json:"error,omitempty"`
}
