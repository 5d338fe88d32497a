package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/bugspot/bugspot/internal/core/apperror"
)

const (
	MaxImageSize = 3 * 1024 * 1024
	MaxVideoSize = 25 * 1024 * 1024
)

// MediaStore stores uploaded objects.
type MediaStore interface {
	NewKey(filename string) string
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// KeyChecker reports whether a ledger entry references an object key.
type KeyChecker interface {
	SubmissionExistsForKey(ctx context.Context, key string) (bool, error)
}

// Uploader accepts reporter media and deletes uploads no report ends up using.
type Uploader struct {
	media    MediaStore
	ledger   KeyChecker
	delay    time.Duration
	schedule func(d time.Duration, f func())
}

// NewUploader creates an Uploader that checks each upload for a referencing
// ledger entry after delay.
func NewUploader(media MediaStore, ledger KeyChecker, delay time.Duration) *Uploader {
	return &Uploader{
		media:  media,
		ledger: ledger,
		delay:  delay,
		schedule: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Upload validates and stores one image or video and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	if size <= 0 {
		return "", apperror.New(apperror.KindValidation, "No file provided")
	}

	isImage := strings.HasPrefix(contentType, "image/")
	isVideo := strings.HasPrefix(contentType, "video/")
	switch {
	case isImage && size > MaxImageSize:
		return "", apperror.New(apperror.KindValidation, "File too large. Images must be under 3MB")
	case isVideo && size > MaxVideoSize:
		return "", apperror.New(apperror.KindValidation, "File too large. Videos must be under 25MB")
	case !isImage && !isVideo:
		return "", apperror.New(apperror.KindValidation, "Only images and videos are allowed")
	}

	key := u.media.NewKey(filename)
	url, err := u.media.Put(ctx, key, body, size, contentType)
	if err != nil {
		return "", apperror.Wrap(apperror.KindUpstream, "Upload failed", err)
	}

	u.schedule(u.delay, func() { u.removeIfOrphaned(key) })
	return url, nil
}

func (u *Uploader) removeIfOrphaned(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := u.deleteOrphan(ctx, key); err != nil {
		log.Printf("[uploads] Warning: orphan check for %s failed: %v (non-blocking)", key, err)
	}
}

func (u *Uploader) deleteOrphan(ctx context.Context, key string) error {
	used, err := u.ledger.SubmissionExistsForKey(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to look up key: %w", err)
	}
	if used {
		return nil
	}
	if err := u.media.Delete(ctx, key); err != nil {
		return err
	}
	log.Printf("[uploads] Unused file with key %s was deleted", key)
	return nil
}
