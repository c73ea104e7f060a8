package files

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"gateway/internal/crypto"
	"gateway/internal/gatewayerr"
)

// S3Store stores artifact bytes (optionally encrypted at rest) in an S3
// bucket and artifact metadata as S3 object user-metadata, keyed by the
// canonical "files/<id>-<name>" object key.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	rootSecret []byte // nil disables at-rest encryption
}

// NewS3Store constructs a Store backed by bucket. When rootSecret is
// non-empty, artifact bytes are encrypted at rest using a per-artifact key
// derived via crypto.DeriveArtifactKey.
func NewS3Store(client *s3.Client, bucket string, rootSecret []byte) *S3Store {
	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		rootSecret: rootSecret,
	}
}

func (s *S3Store) Put(ctx context.Context, filename, mediaType, purpose string, data []byte) (ArtifactRecord, error) {
	// The id suffix must be pure hex, so the UUID's dashes are stripped.
	id := "file-" + strings.ReplaceAll(uuid.New().String(), "-", "")
	rec := ArtifactRecord{
		ID:               id,
		OriginalFilename: filename,
		MediaType:        mediaType,
		SizeBytes:        int64(len(data)),
		CreatedUnix:      time.Now().Unix(),
		Purpose:          purpose,
		Status:           StatusUploaded,
	}

	payload := data
	if s.rootSecret != nil {
		key, err := crypto.DeriveArtifactKey(s.rootSecret, id)
		if err != nil {
			return ArtifactRecord{}, gatewayerr.Internal(err)
		}
		sealed, err := crypto.Seal(key, data)
		if err != nil {
			return ArtifactRecord{}, gatewayerr.Internal(err)
		}
		payload = sealed
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(ObjectKey(id, filename)),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(mediaType),
		Metadata: map[string]string{
			"artifact-id":       id,
			"original-filename": filename,
			"media-type":        mediaType,
			"purpose":           purpose,
			"created-unix":      strconv.FormatInt(rec.CreatedUnix, 10),
			"size-bytes":        strconv.FormatInt(rec.SizeBytes, 10),
			"status":            string(StatusUploaded),
			"encrypted":         strconv.FormatBool(s.rootSecret != nil),
		},
	})
	if err != nil {
		return ArtifactRecord{}, gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to store artifact", err)
	}
	return rec, nil
}

func (s *S3Store) Get(ctx context.Context, id string) (ArtifactRecord, []byte, error) {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return ArtifactRecord{}, nil, err
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return ArtifactRecord{}, nil, gatewayerr.FileNotFound(id)
	}
	rec := recordFromMetadata(id, head.Metadata)

	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return ArtifactRecord{}, nil, gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to fetch artifact", err)
	}

	payload := buf.Bytes()
	if head.Metadata["encrypted"] == "true" && s.rootSecret != nil {
		key, err := crypto.DeriveArtifactKey(s.rootSecret, id)
		if err != nil {
			return ArtifactRecord{}, nil, gatewayerr.Internal(err)
		}
		opened, err := crypto.Open(key, payload)
		if err != nil {
			return ArtifactRecord{}, nil, gatewayerr.Internal(err)
		}
		payload = opened
	}
	return rec, payload, nil
}

func (s *S3Store) List(ctx context.Context, purpose string, limit int) ([]ArtifactRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("files/"),
	})
	var out []ArtifactRecord
	for paginator.HasMorePages() && len(out) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to list artifacts", err)
		}
		for _, obj := range page.Contents {
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: obj.Key})
			if err != nil {
				continue
			}
			id := head.Metadata["artifact-id"]
			if purpose != "" && head.Metadata["purpose"] != purpose {
				continue
			}
			out = append(out, recordFromMetadata(id, head.Metadata))
			if len(out) >= limit {
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedUnix > out[j].CreatedUnix })
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to delete artifact", err)
	}
	return nil
}

func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "files bucket unreachable", err)
	}
	return nil
}

// findKey locates the object key for id by listing with the id's prefix,
// since the filename suffix of the canonical key is not known a priori.
func (s *S3Store) findKey(ctx context.Context, id string) (string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String("files/" + id + "-"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "failed to resolve artifact key", err)
	}
	if len(out.Contents) == 0 {
		return "", gatewayerr.FileNotFound(id)
	}
	return aws.ToString(out.Contents[0].Key), nil
}

func recordFromMetadata(id string, md map[string]string) ArtifactRecord {
	size, _ := strconv.ParseInt(md["size-bytes"], 10, 64)
	created, _ := strconv.ParseInt(md["created-unix"], 10, 64)
	return ArtifactRecord{
		ID:               id,
		OriginalFilename: md["original-filename"],
		MediaType:        md["media-type"],
		SizeBytes:        size,
		CreatedUnix:      created,
		Purpose:          md["purpose"],
		Status:           Status(md["status"]),
	}
}
