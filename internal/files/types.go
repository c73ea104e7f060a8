// Package files implements the Files subsystem: artifact storage (an S3
// object-store adapter) and the file context injector that fetches
// artifacts, extracts text by media type, and prepends a framed preamble to
// the first user message.
package files

import "context"

// Status is the lifecycle state of an ArtifactRecord.
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

// ArtifactRecord is the metadata half of an uploaded file.
type ArtifactRecord struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	MediaType        string `json:"media_type"`
	SizeBytes        int64  `json:"size_bytes"`
	CreatedUnix      int64  `json:"created_unix"`
	Purpose          string `json:"purpose"`
	Status           Status `json:"status"`
}

// ObjectKey is the canonical object-store key for id/filename:
// "files/<id>-<sanitized filename>".
func ObjectKey(id, filename string) string {
	return "files/" + id + "-" + sanitizeFilename(filename)
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "file"
	}
	return string(out)
}

// Store is the persistence contract for artifacts: metadata and binary
// content, backed by an object store. Callers depend on this interface, not
// on the S3 implementation.
type Store interface {
	Put(ctx context.Context, filename, mediaType, purpose string, data []byte) (ArtifactRecord, error)
	Get(ctx context.Context, id string) (ArtifactRecord, []byte, error)
	List(ctx context.Context, purpose string, limit int) ([]ArtifactRecord, error)
	Delete(ctx context.Context, id string) error
	HealthCheck(ctx context.Context) error
}
