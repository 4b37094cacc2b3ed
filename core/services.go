package core

import (
	"context"
	"io"
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core/document"
)

type (
	// Logger is any logging service.
	// expected args: error | map[string]interface{} | the logged in user.
	Logger interface {
		Debug(msg string, args ...interface{})
		Info(msg string, args ...interface{})
		Warn(msg string, args ...interface{})
		Error(msg string, args ...interface{})
		Fatal(msg string, args ...interface{})
	}

	// UploadedFile describes a stored object.
	UploadedFile struct {
		Key         string `json:"key"`
		URL         string `json:"url"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}

	// FileStorage stores uploaded files and returns their public URL.
	FileStorage interface {
		Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (UploadedFile, error)
	}

	// TokenDenylist tracks revoked access tokens until they expire.
	TokenDenylist interface {
		Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}

	// DocumentRenderer turns a document into a file in its own format (PDF, XLSX...).
	DocumentRenderer interface {
		ContentType() string
		Extension() string
		Render(w io.Writer, doc document.Document) error
	}
)
