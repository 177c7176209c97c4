package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStore 基于 Supabase Storage 的实现，bucket 需为公开读
type SupabaseStore struct {
	client *storage_go.Client
	bucket string
}

func NewSupabaseStore(projectURL, serviceKey, bucket string) *SupabaseStore {
	endpoint := strings.TrimRight(projectURL, "/") + "/storage/v1"
	client := storage_go.NewClient(endpoint, serviceKey, nil)
	return &SupabaseStore{client: client, bucket: bucket}
}

func (s *SupabaseStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := objectName(contentType)
	upsert := false
	if _, err := s.client.UploadFile(s.bucket, name, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return s.client.GetPublicUrl(s.bucket, name).SignedURL, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	marker := "/object/public/" + s.bucket + "/"
	i := strings.Index(url, marker)
	if i < 0 {
		return fmt.Errorf("url %q is not in bucket %s", url, s.bucket)
	}
	path := url[i+len(marker):]
	if _, err := s.client.RemoveFile(s.bucket, []string{path}); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
