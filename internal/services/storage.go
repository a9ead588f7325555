package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"commhub/internal/apperr"
	"commhub/pkg/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// MaxUploadSize is the largest accepted operator upload
	MaxUploadSize = 50 << 20

	attachmentsDir = "attachments"
)

// ErrMediaNotFound is returned when a stored file does not exist
var ErrMediaNotFound = errors.New("media file not found")

// MediaBackend stores attachment bytes under media-relative keys
type MediaBackend interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentStore persists attachment rows
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, att *models.Attachment) error
	DeleteAttachment(ctx context.Context, id uuid.UUID) error
}

// MediaStore is the attachment store: UUID-named files under attachments/
// plus their database rows
type MediaStore struct {
	backend     MediaBackend
	attachments AttachmentStore
}

// NewMediaStore creates a new media store
func NewMediaStore(backend MediaBackend, attachments AttachmentStore) *MediaStore {
	return &MediaStore{backend: backend, attachments: attachments}
}

// Persist writes bytes to a new attachments/<uuid>.<ext> file and stores the
// attachment row. The row is unowned until a message claims it.
func (m *MediaStore) Persist(ctx context.Context, data []byte, mimeType, originalName string) (*models.Attachment, error) {
	mimeType = NormalizeMIME(mimeType, data)
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	key := path.Join(attachmentsDir, id.String()+ExtensionFor(mimeType, originalName))

	if err := m.backend.Put(ctx, key, data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", key, err)
	}

	att := &models.Attachment{
		FilePath:     key,
		FileType:     ClassifyMIME(mimeType),
		MimeType:     mimeType,
		OriginalName: originalName,
		FileSize:     int64(len(data)),
	}
	att.ID = id
	if err := m.attachments.CreateAttachment(ctx, att); err != nil {
		if derr := m.backend.Delete(ctx, key); derr != nil {
			log.Warn().Err(derr).Str("path", key).Msg("Failed to remove orphaned media file")
		}
		return nil, err
	}
	return att, nil
}

// PersistUpload validates and persists an operator upload
func (m *MediaStore) PersistUpload(ctx context.Context, r io.Reader, declaredMIME, originalName string) (*models.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	if len(data) > MaxUploadSize {
		return nil, apperr.Validation("file exceeds the %d MiB limit", MaxUploadSize>>20)
	}
	mimeType, ok := SniffUploadMIME(declaredMIME, data)
	if !ok {
		return nil, apperr.Validation("file type %s is not allowed", baseMIME(mimetype.Detect(data).String()))
	}
	return m.Persist(ctx, data, mimeType, originalName)
}

// Open opens a stored file by its media-relative path
func (m *MediaStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	key, err := CleanMediaPath(key)
	if err != nil {
		return nil, 0, err
	}
	return m.backend.Open(ctx, key)
}

// ReadAll reads a stored file into memory
func (m *MediaStore) ReadAll(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := m.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete removes the attachment row and its file. I/O errors are logged only.
func (m *MediaStore) Delete(ctx context.Context, att *models.Attachment) {
	if err := m.attachments.DeleteAttachment(ctx, att.ID); err != nil {
		log.Error().Err(err).Str("attachment_id", att.ID.String()).Msg("Failed to delete attachment row")
	}
	m.RemoveFile(ctx, att.FilePath)
}

// RemoveFile removes a stored file whose row is already gone
func (m *MediaStore) RemoveFile(ctx context.Context, key string) {
	if err := m.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrMediaNotFound) {
		log.Error().Err(err).Str("path", key).Msg("Failed to delete media file")
	}
}

// ETag returns the strong ETag of an attachment
func ETag(att *models.Attachment) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%s-%d", att.ID, att.FileSize))
}

// CleanMediaPath validates a media-relative path
func CleanMediaPath(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
	if key == "" || key == "." || !strings.HasPrefix(key, attachmentsDir+"/") {
		return "", apperr.NotFound("media %s not found", key)
	}
	return key, nil
}

// NormalizeMIME strips parameters and sniffs the content when the declared
// type is missing or generic
func NormalizeMIME(declared string, data []byte) string {
	declared = baseMIME(declared)
	if declared != "" && declared != "application/octet-stream" && declared != "binary/octet-stream" {
		return declared
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	return baseMIME(mimetype.Detect(data).String())
}

// ClassifyMIME maps a MIME type to an attachment file type
func ClassifyMIME(mimeType string) models.FileType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.FileTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.FileTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.FileTypeAudio
	case documentMIMEs[mimeType],
		strings.Contains(mimeType, "spreadsheet"),
		strings.Contains(mimeType, "wordprocessing"),
		strings.Contains(mimeType, "presentation"):
		return models.FileTypeDocument
	}
	return models.FileTypeFile
}

var documentMIMEs = map[string]bool{
	"application/pdf":               true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/rtf":               true,
	"text/plain":                    true,
	"text/csv":                      true,
}

var extensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"image/heic":         ".heic",
	"audio/ogg":          ".ogg",
	"audio/mpeg":         ".mp3",
	"audio/mp4":          ".m4a",
	"audio/wav":          ".wav",
	"video/mp4":          ".mp4",
	"video/quicktime":    ".mov",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"application/zip": ".zip",
}

// ExtensionFor derives a file extension from the MIME type, falling back to
// the original name and finally to .bin
func ExtensionFor(mimeType, originalName string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	if mimeType != "" && mimeType != "application/octet-stream" {
		if mt := mimetype.Lookup(mimeType); mt != nil && mt.Extension() != "" {
			return mt.Extension()
		}
	}
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" && len(ext) <= 10 {
		return ext
	}
	return ".bin"
}

var allowedMIMEs = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"image/heic": true, "image/bmp": true, "image/tiff": true,
	"application/pdf": true, "application/msword": true, "application/rtf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"text/plain": true, "text/csv": true,
	"application/zip": true, "application/x-rar-compressed": true, "application/vnd.rar": true,
	"application/x-7z-compressed": true,
	"audio/mpeg":                  true, "audio/ogg": true, "audio/wav": true, "audio/mp4": true,
	"audio/aac": true, "audio/webm": true, "audio/x-m4a": true,
	"video/mp4": true, "video/quicktime": true, "video/webm": true, "video/3gpp": true,
}

// SniffUploadMIME resolves the type of an upload from its content. The
// declared type is kept only when the content agrees with it; otherwise the
// nearest allowed detected type wins. A specific declared type outside the
// allow list, or content no allowed type matches, is rejected.
func SniffUploadMIME(declared string, data []byte) (string, bool) {
	declared = baseMIME(declared)
	if declared == "binary/octet-stream" || declared == "application/octet-stream" {
		declared = ""
	}
	if declared != "" && !allowedMIMEs[declared] {
		return "", false
	}
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if declared != "" && mt.Is(declared) {
			return declared, true
		}
		if detected := baseMIME(mt.String()); allowedMIMEs[detected] {
			return detected, true
		}
	}
	return "", false
}

func baseMIME(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if i := strings.Index(v, ";"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

// IsAllowedMIME reports whether an upload of this type is accepted
func IsAllowedMIME(mimeType string) bool {
	return allowedMIMEs[mimeType]
}

// LocalBackend stores files under a base directory
type LocalBackend struct {
	root string
}

// NewLocalBackend creates the base directory if needed
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(filepath.Join(root, attachmentsDir), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalBackend{root: root}, nil
}

func (b *LocalBackend) Put(_ context.Context, key string, data []byte, _ string) error {
	full := filepath.Join(b.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

func (b *LocalBackend) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	f, err := os.Open(filepath.Join(b.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, ErrMediaNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(b.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return ErrMediaNotFound
	}
	return err
}

// S3Backend stores files in an S3 bucket under the same keys
type S3Backend struct {
	client *s3.S3
	bucket string
}

// NewS3Backend creates an S3 backend using the default AWS credential chain
func NewS3Backend(region, bucket string) (*S3Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 configuration missing")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Backend{client: s3.New(sess), bucket: bucket}, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	return err
}

func (b *S3Backend) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, 0, ErrMediaNotFound
		}
		return nil, 0, err
	}
	return out.Body, aws.Int64Value(out.ContentLength), nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	return err
}
