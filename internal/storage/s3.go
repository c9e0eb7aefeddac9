package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// budgetKey is where the request counter itself lives in the bucket, so
// the budget is respected across restarts within a tracking period.
const budgetKey = "meta/s3_request_count.json"

// flushEvery bounds how many counted requests may go unpersisted. The
// counter is approximate by that margin after a crash.
const flushEvery = 16

// S3Backend stores blobs in a bucket and counts every request against a
// configurable budget. When the budget is spent and limiting is enabled,
// operations fail with ErrQuotaExceeded instead of silently billing on.
type S3Backend struct {
	client *s3.Client
	bucket string
	logger *zap.Logger

	limit  bool
	budget int

	mu         sync.Mutex
	count      int
	period     string // YYYY-MM; counter resets when the month rolls over
	sinceFlush int
}

var _ Backend = (*S3Backend)(nil)

type budgetRecord struct {
	Count  int    `json:"count"`
	Period string `json:"period"`
}

type S3Config struct {
	Bucket        string
	Region        string
	LimitRequests bool
	RequestBudget int
}

func NewS3Backend(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	b := &S3Backend{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		logger: logger,
		limit:  cfg.LimitRequests,
		budget: cfg.RequestBudget,
		period: time.Now().UTC().Format("2006-01"),
	}
	if err := b.loadBudget(ctx); err != nil {
		return nil, err
	}
	logger.Info("S3 backend initialized",
		zap.String("bucket", cfg.Bucket),
		zap.Bool("limit_requests", cfg.LimitRequests),
		zap.Int("requests_used", b.count),
		zap.Int("request_budget", cfg.RequestBudget))
	return b, nil
}

func (b *S3Backend) Name() string { return "s3" }

// loadBudget restores the persisted counter. The bookkeeping read is not
// counted against the budget. A stored period older than the current
// month resets the counter.
func (b *S3Backend) loadBudget(ctx context.Context) error {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(budgetKey),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("failed to load request counter: %w", err)
	}
	defer out.Body.Close()
	var rec budgetRecord
	if err := json.NewDecoder(out.Body).Decode(&rec); err != nil {
		return fmt.Errorf("failed to decode request counter: %w", err)
	}
	if rec.Period == b.period {
		b.count = rec.Count
	} else {
		b.logger.Info("S3 request counter reset for new period",
			zap.String("stored_period", rec.Period), zap.String("period", b.period))
	}
	return nil
}

func (b *S3Backend) flushBudget(ctx context.Context) {
	rec := budgetRecord{Count: b.count, Period: b.period}
	data, _ := json.Marshal(rec)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(budgetKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		b.logger.Warn("failed to persist S3 request counter", zap.Error(err))
		return
	}
	b.count++ // the flush itself is a billed request
	b.sinceFlush = 0
}

// spend accounts one billable request. It fails before the request is
// made once the budget is exhausted.
func (b *S3Backend) spend(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit && b.count >= b.budget {
		return fmt.Errorf("%w: %d requests used of %d", ErrQuotaExceeded, b.count, b.budget)
	}
	b.count++
	b.sinceFlush++
	if b.sinceFlush >= flushEvery {
		b.flushBudget(ctx)
	}
	return nil
}

// Close persists the request counter. Call it on shutdown.
func (b *S3Backend) Close(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sinceFlush > 0 {
		b.flushBudget(ctx)
	}
}

func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := b.spend(ctx); err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get %s from S3: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from S3: %w", key, err)
	}
	return data, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	if err := b.spend(ctx); err != nil {
		return err
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s to S3: %w", key, err)
	}
	return nil
}

func (b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		if err := b.spend(ctx); err != nil {
			return nil, err
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q in S3: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	// S3 deletes are idempotent, so probe first to honor the NotFound
	// contract.
	if err := b.spend(ctx); err != nil {
		return err
	}
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to stat %s in S3: %w", key, err)
	}
	if err := b.spend(ctx); err != nil {
		return err
	}
	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("failed to delete %s from S3: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
