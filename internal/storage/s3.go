package storage

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
)

// UploadedFile is the metadata handed back to the chat core; raw bytes
// never enter the message store.
type UploadedFile struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

// S3Store stores chat attachments.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucket     string
	region     string
	publicRead bool
}

func NewS3Store(ctx context.Context, region, bucket string, publicRead bool) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucket:     bucket,
		region:     region,
		publicRead: publicRead,
	}, nil
}

// Upload stores the buffer under a generated key and returns the durable
// metadata for the file.
func (s *S3Store) Upload(ctx context.Context, originalName, contentType string, data []byte) (*UploadedFile, error) {
	key := fmt.Sprintf("chat/%d-%d", time.Now().UnixMilli(), rand.Int63n(1e9))
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, err
	}

	var u string
	if s.publicRead {
		u = fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, url.PathEscape(key))
	} else {
		u, err = s.presignURL(ctx, key, 7*24*time.Hour)
		if err != nil {
			return nil, err
		}
	}
	return &UploadedFile{
		URL:      u,
		Type:     MessageTypeForMIME(contentType),
		FileName: originalName,
		FileSize: int64(len(data)),
		MimeType: contentType,
	}, nil
}

func (s *S3Store) presignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	pc := s3.NewPresignClient(s.client)
	req, err := pc.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// MessageTypeForMIME maps a MIME type to the message type stored with a
// file message.
func MessageTypeForMIME(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.TypeImage
	case strings.HasPrefix(mime, "video/"):
		return models.TypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.TypeAudio
	case mime == "application/pdf":
		return models.TypePDF
	default:
		return models.TypeFile
	}
}
