// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package assets hands out pre-signed S3 upload URLs so clients can upload
// files without routing the bytes through the server.
package assets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/meta-1/wiki/internal/config"
	"github.com/meta-1/wiki/internal/models"
)

const DefaultPresignExpiry = 15 * time.Minute

var ErrFileNameRequired = errors.New("file name is required")

// Indirections for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// UploadRequest describes the file a client wants to upload.
type UploadRequest struct {
	FileName    string
	ContentType string
}

type Service struct {
	config *config.S3Config
	now    func() time.Time
}

func NewService(cfg *config.S3Config) *Service {
	return &Service{config: cfg, now: time.Now}
}

func (s *Service) expiry() time.Duration {
	if s.config.PresignExpiry > 0 {
		return s.config.PresignExpiry
	}
	return DefaultPresignExpiry
}

func (s *Service) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.config.Region),
	}
	if s.config.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.config.AccessKey, s.config.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3PresignClient(client), nil
}

// PresignUpload returns a pre-signed PUT URL under a fresh object key.
func (s *Service) PresignUpload(ctx context.Context, req UploadRequest) (*models.PresignedUpload, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, ErrFileNameRequired
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return nil, err
	}

	key := s.objectKey(req.FileName)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}
	if req.ContentType != "" {
		in.ContentType = aws.String(req.ContentType)
	}

	expiry := s.expiry()
	signed, err := presignPutObject(pc, ctx, in, s3.WithPresignExpires(expiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &models.PresignedUpload{
		URL:       signed.URL,
		Key:       key,
		ExpiresIn: int64(expiry / time.Second),
	}, nil
}

// objectKey is uploads/<yyyy>/<mm>/<dd>/<uuid><ext>.
func (s *Service) objectKey(fileName string) string {
	d := s.now().UTC()
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	return fmt.Sprintf("uploads/%04d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}
