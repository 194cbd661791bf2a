package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/google/uuid"
)

// maxURLExpiry is the longest validity SigV4 presigning accepts.
const maxURLExpiry = 7 * 24 * time.Hour

// S3Config configures NewS3Offloader. Endpoint and static credentials are
// optional; without them the default AWS chain is used.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	URLExpiry time.Duration
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type getPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// S3Offloader uploads payloads to a bucket and links them with presigned
// GET URLs.
type S3Offloader struct {
	put     objectPutter
	presign getPresigner
	bucket  string
	prefix  string
	expiry  time.Duration
	now     func() time.Time
}

func NewS3Offloader(ctx context.Context, cfg S3Config) (*S3Offloader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 offloader: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, common.Collaborator("s3", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Offloader(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Offloader(put objectPutter, presign getPresigner, cfg S3Config) *S3Offloader {
	expiry := cfg.URLExpiry
	if expiry <= 0 || expiry > maxURLExpiry {
		expiry = maxURLExpiry
	}
	return &S3Offloader{
		put:     put,
		presign: presign,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		expiry:  expiry,
		now:     time.Now,
	}
}

func (o *S3Offloader) key() string {
	d := o.now().UTC()
	name := fmt.Sprintf("%d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.NewString())
	if o.prefix == "" {
		return name
	}
	return path.Join(o.prefix, name)
}

// Offload uploads every attachment carrying Data. The returned slice is a
// copy; attachments that already have only a URL are left alone.
func (o *S3Offloader) Offload(ctx context.Context, media []models.Media) ([]models.Media, error) {
	if len(media) == 0 {
		return media, nil
	}
	out := make([]models.Media, len(media))
	for i, m := range media {
		out[i] = m
		if len(m.Data) == 0 {
			continue
		}

		key := o.key()
		_, err := o.put.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(o.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(m.Data),
			ContentType: aws.String(m.Type.MimeType()),
		})
		if err != nil {
			return nil, common.Collaborator("s3", fmt.Errorf("put %s: %w", key, err))
		}

		req, err := o.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(o.expiry))
		if err != nil {
			return nil, common.Collaborator("s3", fmt.Errorf("presign %s: %w", key, err))
		}
		out[i].URL = req.URL
		out[i].Data = nil
	}
	return out, nil
}
