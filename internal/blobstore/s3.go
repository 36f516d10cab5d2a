package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/smallbiz-web/internal/pathutil"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Options struct {
	Client S3API
	Bucket string

	// Prefix is prepended to every key, e.g. "site".
	Prefix string

	// PublicBaseURL is the origin objects are served from, e.g. a CDN or
	// https://bucket.s3.region.amazonaws.com. Defaults from Endpoint/Region.
	PublicBaseURL string
	Endpoint      string
	Region        string

	// PublicRead sets the public-read canned ACL on uploads. Leave false for
	// buckets with ACLs disabled and a bucket policy granting read.
	PublicRead bool
}

type S3Store struct {
	client     S3API
	bucket     string
	prefix     string
	base       string
	publicRead bool
}

func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Client == nil {
		return nil, xerrors.New("blobstore: S3 client is required")
	}
	if opts.Bucket == "" {
		return nil, xerrors.New("blobstore: bucket is required")
	}

	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		switch {
		case opts.Endpoint != "":
			base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
		case opts.Region != "":
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		default:
			base = fmt.Sprintf("https://%s.s3.amazonaws.com", opts.Bucket)
		}
	}

	return &S3Store{
		client:     opts.Client,
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		base:       base,
		publicRead: opts.PublicRead,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Store) logicalKey(full string) string {
	if s.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, s.prefix+"/")
}

func (s *S3Store) List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.fullKey(prefix)),
		MaxKeys: aws.Int32(int32(limit)),
	}
	if cursor != "" {
		in.ContinuationToken = aws.String(cursor)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return ListPage{}, xerrors.Wrapf(err, "list s3://%s/%s", s.bucket, s.fullKey(prefix))
	}

	page := ListPage{Objects: make([]Object, 0, len(out.Contents))}
	for _, o := range out.Contents {
		key := s.logicalKey(aws.ToString(o.Key))
		obj := Object{
			Key:  key,
			URL:  s.URL(key),
			Size: aws.ToInt64(o.Size),
		}
		if o.LastModified != nil {
			obj.LastModified = o.LastModified.UTC()
		}
		page.Objects = append(page.Objects, obj)
	}
	if aws.ToBool(out.IsTruncated) {
		page.Cursor = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		// always read the latest write, never a cached copy
		ResponseCacheControl: aws.String("no-cache"),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, xerrors.Wrapf(ErrNotFound, "get %s", key)
		}
		return nil, xerrors.Wrapf(err, "get s3://%s/%s", s.bucket, s.fullKey(key))
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}
	if s.publicRead {
		in.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return Object{}, xerrors.Wrapf(err, "put s3://%s/%s", s.bucket, s.fullKey(key))
	}
	return Object{
		Key:         key,
		URL:         s.URL(key),
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return xerrors.Wrapf(err, "delete s3://%s/%s", s.bucket, s.fullKey(key))
	}
	return nil
}

func (s *S3Store) URL(key string) string {
	full := s.fullKey(key)
	segs := strings.Split(full, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.base + "/" + strings.Join(segs, "/")
}

func (s *S3Store) KeyFromURL(u string) (string, bool) {
	if u == "" || !strings.HasPrefix(u, s.base+"/") {
		return "", false
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(s.base)
	if err != nil {
		return "", false
	}
	full, ok := pathutil.Relative(strings.TrimPrefix(parsed.Path, strings.TrimRight(baseURL.Path, "/")+"/"))
	if !ok {
		return "", false
	}
	if s.prefix != "" && !strings.HasPrefix(full, s.prefix+"/") {
		return "", false
	}
	return s.logicalKey(full), true
}
