package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"aiforge-core/core/errs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	log "github.com/sirupsen/logrus"
)

// BlobStore stores opaque objects by key
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// ContentStore addresses blobs by CIDv1 (raw codec, sha2-256), the same ids
// IPFS gives single-block raw content
type ContentStore struct {
	blobs   BlobStore
	maxSize int64
}

// NewContentStore creates a content store over blobs. maxSize <= 0 disables the size limit.
func NewContentStore(blobs BlobStore, maxSize int64) *ContentStore {
	return &ContentStore{blobs: blobs, maxSize: maxSize}
}

// ContentID computes the content id of data
func ContentID(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Put stores data and returns its content id. Storing the same bytes twice is a no-op.
func (cs *ContentStore) Put(ctx context.Context, data []byte) (string, error) {
	if cs.maxSize > 0 && int64(len(data)) > cs.maxSize {
		return "", fmt.Errorf("content of %d bytes exceeds limit %d: %w", len(data), cs.maxSize, errs.ErrValidation)
	}
	id, err := ContentID(data)
	if err != nil {
		return "", err
	}
	if err := cs.blobs.Put(ctx, id.String(), data); err != nil {
		log.WithField("cid", id.String()).Warnf("Blob store put failed: %v", err)
		return "", fmt.Errorf("storage unavailable: %v: %w", err, errs.ErrInconclusive)
	}
	return id.String(), nil
}

// Get returns the bytes of a content id and checks they hash to it
func (cs *ContentStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	id, err := cid.Decode(contentID)
	if err != nil {
		return nil, fmt.Errorf("invalid content id %q: %w", contentID, errs.ErrValidation)
	}

	data, err := cs.blobs.Get(ctx, id.String())
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("storage unavailable: %v: %w", err, errs.ErrInconclusive)
	}

	got, err := id.Prefix().Sum(data)
	if err != nil {
		return nil, err
	}
	if !got.Equals(id) {
		return nil, fmt.Errorf("content %s failed integrity check", contentID)
	}
	return data, nil
}

// S3Config configures an S3-compatible bucket such as MinIO
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3Store keeps blobs in an S3-compatible bucket
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3 client for cfg using path-style addressing
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("object %s: %w", key, errs.ErrNotFound)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// MemoryBlobStore keeps blobs in memory
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: map[string][]byte{}}
}

func (m *MemoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, errs.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
