package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/raven/internal/database"
)

type fakeS3 struct {
	objects map[string][]byte
	deleted []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(input.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key := range f.objects {
		mod := time.Now().UTC()
		if strings.Contains(key, "stale") {
			mod = time.Now().UTC().AddDate(0, 0, -90)
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			LastModified: aws.Time(mod),
		})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(input.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func testManager(t *testing.T, client s3Client) *Manager {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "raven.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(Config{
		S3:            S3Config{Bucket: "backups", AccessKey: "k", SecretKey: "s"},
		DBPath:        dbPath,
		Passphrase:    "hunter2",
		RetentionDays: 30,
	}, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.client = client
	return m
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	fake := newFakeS3()
	m := testManager(t, fake)

	if err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if len(fake.objects) != 1 {
		t.Fatalf("uploaded %d objects, want 1", len(fake.objects))
	}
	for key, data := range fake.objects {
		if !strings.HasPrefix(key, objectPrefix) || !strings.HasSuffix(key, ".db.enc") {
			t.Errorf("object key = %q", key)
		}
		if bytes.Contains(data, []byte("SQLite format 3")) {
			t.Error("uploaded snapshot is not encrypted")
		}
		plaintext, err := Open(data, "hunter2")
		if err != nil {
			t.Fatalf("decrypt snapshot: %v", err)
		}
		if !bytes.Contains(plaintext, []byte("SQLite format 3")) {
			t.Error("decrypted snapshot is not a sqlite database")
		}
	}
	if m.lastBackup.IsZero() {
		t.Error("lastBackup not recorded")
	}
}

func TestCleanupDeletesOnlyExpiredObjects(t *testing.T) {
	fake := newFakeS3()
	fake.objects[objectPrefix+"stale.db.enc"] = []byte("old")
	fake.objects[objectPrefix+"fresh.db.enc"] = []byte("new")
	m := testManager(t, fake)

	if err := m.cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != objectPrefix+"stale.db.enc" {
		t.Errorf("deleted = %v, want only the stale object", fake.deleted)
	}
	if _, kept := fake.objects[objectPrefix+"fresh.db.enc"]; !kept {
		t.Error("fresh object should survive cleanup")
	}
}

func TestManagerDisabledWithoutConfig(t *testing.T) {
	m := NewManager(Config{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if m.Enabled() {
		t.Error("empty config should leave backups disabled")
	}
	if err := m.RunNow(context.Background()); err == nil {
		t.Error("RunNow without config should error")
	}
	// Start and Stop are no-ops when disabled.
	m.Start(context.Background())
	m.Stop()
}
