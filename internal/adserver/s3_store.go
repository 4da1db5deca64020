package adserver

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/echoface/adloader/internal/config"
	"github.com/echoface/adloader/pkg/jsonx"
)

// S3Store reads one JSON Waterfall object per ad unit, stored under
// <prefix>/<ad unit id>.json.
type S3Store struct {
	client     *minio.Client
	bucketName string
	prefix     string
}

func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3Store{
		client:     client,
		bucketName: cfg.BucketName,
		prefix:     strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Store) objectKey(adUnitID string) string {
	return path.Join(s.prefix, adUnitID+".json")
}

func (s *S3Store) Waterfall(ctx context.Context, adUnitID string) (*Waterfall, error) {
	key := s.objectKey(adUnitID)
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	wf := &Waterfall{}
	if err := jsonx.Unmarshal(buf.Bytes(), wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal waterfall from %s: %w", key, err)
	}
	if wf.AdUnitID == "" {
		wf.AdUnitID = adUnitID
	}
	if wf.AdUnitID != adUnitID {
		return nil, fmt.Errorf("object %s holds ad unit %q", key, wf.AdUnitID)
	}
	return wf, nil
}

// AdUnits lists the ad unit ids that have an object under the prefix.
func (s *S3Store) AdUnits(ctx context.Context) ([]string, error) {
	listPrefix := s.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	var ids []string
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects error: %w", object.Err)
		}
		if !strings.HasSuffix(object.Key, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(object.Key, listPrefix), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
