package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/utils"
)

const (
	uploadURLExpiry = 15 * time.Minute
	maxFilenameLen  = 100
)

var (
	ErrUnsupportedContentType = errors.New("content type must be an image or application/pdf")
	ErrStorageNotConfigured   = errors.New("attachment storage is not configured")
)

// PresignedUpload is what a client needs to upload one attachment. URL is the
// value to send later as a message attachment.
type PresignedUpload struct {
	UploadURL string `json:"uploadUrl"`
	URL       string `json:"url"`
	Key       string `json:"key"`
}

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	PresignAttachmentUpload(ctx context.Context, threadID utils.SixID, filename, contentType string) (*PresignedUpload, error)
}

type s3Storage struct {
	cfg           *config.Config
	presignClient *s3.PresignClient
}

// NewS3Storage creates a new S3 storage service from the static credentials in cfg.
func NewS3Storage(cfg *config.Config) (IS3Storage, error) {
	if cfg.AwsS3Bucket == "" {
		return nil, ErrStorageNotConfigured
	}

	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3StorageWithClient(cfg, s3.NewFromConfig(awsCfg)), nil
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(cfg *config.Config, client *s3.Client) IS3Storage {
	return &s3Storage{
		cfg:           cfg,
		presignClient: s3.NewPresignClient(client),
	}
}

// AllowedContentType reports whether an attachment of this MIME type may be uploaded.
func AllowedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "application/pdf" {
		return true
	}
	sub, ok := strings.CutPrefix(ct, "image/")
	return ok && sub != ""
}

// SanitizeFilename keeps the base name and replaces anything outside [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := strings.TrimLeft(sb.String(), ".")
	if len(out) > maxFilenameLen {
		out = out[len(out)-maxFilenameLen:]
	}
	if out == "" || out == "_" {
		return "file"
	}
	return out
}

// AttachmentKey is chat/<threadId>/<uuid>_<sanitized filename>.
func AttachmentKey(threadID utils.SixID, filename string) string {
	return fmt.Sprintf("chat/%s/%s_%s", threadID, uuid.NewString(), SanitizeFilename(filename))
}

func (s *s3Storage) publicURL(key string) string {
	if s.cfg.ImageBaseS3URL != "" {
		return s.cfg.ImageBaseS3URL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.AwsS3Bucket, s.cfg.AwsRegion, key)
}

// PresignAttachmentUpload creates a pre-signed PUT URL for one attachment.
func (s *s3Storage) PresignAttachmentUpload(ctx context.Context, threadID utils.SixID, filename, contentType string) (*PresignedUpload, error) {
	if !AllowedContentType(contentType) {
		return nil, ErrUnsupportedContentType
	}

	key := AttachmentKey(threadID, filename)
	presignedReq, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(uploadURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", key, err)
	}

	logging.Debug().Str("key", key).Msg("generated presigned attachment upload")
	return &PresignedUpload{
		UploadURL: presignedReq.URL,
		URL:       s.publicURL(key),
		Key:       key,
	}, nil
}
