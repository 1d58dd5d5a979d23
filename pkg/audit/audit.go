// Package audit records one JSON object per decision/action to durable
// object storage, adapted from the teacher's S3LogStore (same bucket/prefix
// key layout, without its local cache) but storing structured decision
// records instead of plain-text execution logs.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"acaqueue/pkg/models"
)

// Record is one audited decision, written verbatim as a JSON object.
type Record struct {
	Timestamp       time.Time         `json:"timestamp"`
	ContainerApp    string            `json:"containerApp"`
	ResourceGroup   string            `json:"resourceGroup"`
	Action          models.Action     `json:"action"`
	ReasonCode      string            `json:"reasonCode"`
	Conflict        bool              `json:"conflict"`
	DesiredReplicas int               `json:"desiredReplicas"`
	ActionResult    string            `json:"actionResult,omitempty"`
	ActionError     string            `json:"actionError,omitempty"`
	Queues          []models.QueueSnapshot `json:"queues,omitempty"`
}

// Trail is the decision audit sink. Implementations must tolerate being
// called from many per-app goroutines concurrently.
type Trail interface {
	Record(ctx context.Context, rec Record) error
}

// NoopTrail discards every record; used when no audit bucket is configured
// so the controller can still run without S3 credentials.
type NoopTrail struct{}

func NewNoopTrail() NoopTrail { return NoopTrail{} }

func (NoopTrail) Record(ctx context.Context, rec Record) error { return nil }

// S3Trail stores one object per record under prefix/YYYY/MM/DD/<app>-<ts>.json.
type S3Trail struct {
	client *s3.Client
	bucket string
	prefix string
}

type S3TrailConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3Trail(cfg S3TrailConfig) (*S3Trail, error) {
	optFns := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("audit: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Trail{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (t *S3Trail) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	key := t.buildKey(rec)
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("audit: put object: %w", err)
	}
	return nil
}

func (t *S3Trail) buildKey(rec Record) string {
	datePath := rec.Timestamp.Format("2006/01/02")
	return fmt.Sprintf("%s%s/%s-%d.json", t.prefix, datePath, rec.ContainerApp, rec.Timestamp.UnixNano())
}
