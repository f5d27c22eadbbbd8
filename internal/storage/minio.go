package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"

	"shareapi/internal/config"
)

// minioStore implements Store on an S3-compatible backend (MinIO, AWS S3, etc.).
// Uploads are staged on local scratch disk so the object is written with a
// known size in one request.
// It is safe for concurrent use by multiple goroutines.
type minioStore struct {
	client  *minio.Client
	bucket  string
	scratch afero.Fs
	tmpDir  string
}

var _ Store = (*minioStore)(nil)

// NewMinIO creates a new S3-compatible store backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.MinIOConfig) (Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ms := &minioStore{
		client:  cli,
		bucket:  cfg.Bucket,
		scratch: afero.NewOsFs(),
		tmpDir:  os.TempDir(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure bucket exists.
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

// mapMinioErr turns the S3 "missing object" codes into ErrObjectNotFound and
// passes everything else through.
func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return ErrObjectNotFound
	}
	return err
}

func (m *minioStore) Stage(ctx context.Context, r io.Reader, limit int64) (*Staged, error) {
	return stage(ctx, m.scratch, m.tmpDir, r, limit)
}

// Put uploads the staged file. S3 makes a single PUT visible atomically.
func (m *minioStore) Put(ctx context.Context, s *Staged, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if s == nil || s.fs != m.scratch {
		return errors.New("staged upload does not belong to this store")
	}
	f, err := m.scratch.Open(s.name)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, m.bucket, key, f, s.Size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return err
	}
	return discard(s)
}

func (m *minioStore) Discard(s *Staged) error {
	return discard(s)
}

// Open streams an object content as a ReadCloser along with basic info.
func (m *minioStore) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, mapMinioErr(err)
	}
	// Fetch stat to populate info; avoid reading content into memory.
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, mapMinioErr(err)
	}
	return obj, ObjectInfo{Key: key, Size: st.Size, ModTime: st.LastModified}, nil
}

// Remove deletes an object by key. S3 treats deleting a missing key as success.
func (m *minioStore) Remove(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	err := mapMinioErr(m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}))
	if errors.Is(err, ErrObjectNotFound) {
		return nil
	}
	return err
}

func (m *minioStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err = mapMinioErr(err); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *minioStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if ValidateKey(obj.Key) != nil {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// UnlinkSafe is false: a GetObject stream issues range requests lazily and
// fails once the object is gone.
func (m *minioStore) UnlinkSafe() bool {
	return false
}
