// Package storagesvc stores evidence files in an S3 compatible bucket.
package storagesvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type, expected a JPEG or PNG image or a PDF document")

	// AllowedTypes lists the accepted content types.
	AllowedTypes = map[string]bool{
		"image/jpeg":      true,
		"image/png":       true,
		"application/pdf": true,
	}

	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)
)

type minioStorage struct {
	client        *minio.Client
	bucket        string
	baseURL       string
	maxImageWidth int
	now           core.NowFunc
}

var _ core.FileStorage = (*minioStorage)(nil)

// NewMinioStorage connects to the bucket, creating it when missing.
func NewMinioStorage(ctx context.Context, conf core.StorageConfig) (core.FileStorage, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating minio client")
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking bucket")
	}
	if !exists {
		if err := client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "creating bucket")
		}
	}

	baseURL := conf.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if conf.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, conf.Endpoint, conf.Bucket)
	}
	return &minioStorage{
		client:        client,
		bucket:        conf.Bucket,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		maxImageWidth: conf.MaxImageWidth,
		now:           core.UTCNow,
	}, nil
}

func (s *minioStorage) Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (core.UploadedFile, error) {
	contentType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if !AllowedTypes[contentType] {
		return core.UploadedFile{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: ErrUnsupportedType.Error()})
	}

	if strings.HasPrefix(contentType, "image/") {
		data, ct, err := NormalizeImage(r, s.maxImageWidth)
		if err != nil {
			return core.UploadedFile{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "invalid image"})
		}
		r, size, contentType = bytes.NewReader(data), int64(len(data)), ct
		filename = strings.TrimSuffix(filename, path.Ext(filename)) + extension(ct)
	}

	key := ObjectKey("evidence", filename, s.now().Format("20060102"))
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return core.UploadedFile{}, errors.Wrap(err, "uploading object")
	}
	return core.UploadedFile{
		Key:         key,
		URL:         s.baseURL + "/" + key,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// ObjectKey builds a unique key for filename: folder/day/uuid-name.
func ObjectKey(folder, filename, day string) string {
	name := unsafeChars.ReplaceAllString(path.Base(filename), "_")
	return fmt.Sprintf("%s/%s/%s-%s", folder, day, uuid.New().String(), name)
}

// NormalizeImage applies the EXIF orientation, scales the image down to maxWidth
// and re-encodes it. PNG images stay PNG, everything else becomes JPEG.
func NormalizeImage(r io.Reader, maxWidth int) ([]byte, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading image")
	}
	format, err := imaging.FormatFromFilename("x." + sniffExt(data))
	if err != nil {
		format = imaging.JPEG
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", errors.Wrap(err, "decoding image")
	}
	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	contentType := "image/jpeg"
	if format == imaging.PNG {
		contentType = "image/png"
	} else {
		format = imaging.JPEG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, "", errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), contentType, nil
}

func sniffExt(data []byte) string {
	if bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		return "png"
	}
	return "jpg"
}

func extension(contentType string) string {
	if contentType == "image/png" {
		return ".png"
	}
	return ".jpg"
}
