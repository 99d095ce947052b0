package storage

import (
	"context"
	"io"
)

// MediaUploader stores post attachments. Handlers depend on this so tests
// can swap in a fake.
type MediaUploader interface {
	UploadMedia(ctx context.Context, body io.Reader, size int64, userID, originalFilename string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
}

// Ensure S3Uploader implements MediaUploader
var _ MediaUploader = (*S3Uploader)(nil)
