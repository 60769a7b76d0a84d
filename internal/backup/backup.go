// Package backup snapshots the account database to S3-compatible storage,
// encrypted with a passphrase from the environment. Sessions live only in
// memory, so the database is the entire durable state of the service.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const objectPrefix = "backups/"

// s3Client is the subset of the S3 API the manager touches, as an
// interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration. The manager stays disabled
// unless bucket, credentials, and passphrase are all present.
type Config struct {
	S3            S3Config
	DBPath        string
	Passphrase    string
	Hour          int // UTC hour of the nightly run
	RetentionDays int
}

// Manager owns the nightly snapshot loop.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	db         *sql.DB
	client     s3Client
	logger     *slog.Logger
	lastBackup time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}

	m := &Manager{cfg: cfg, db: db, logger: logger}
	if m.Enabled() {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

// Enabled reports whether the manager has enough configuration to run.
func (m *Manager) Enabled() bool {
	return m.cfg.S3.Bucket != "" && m.cfg.S3.AccessKey != "" &&
		m.cfg.S3.SecretKey != "" && m.cfg.Passphrase != ""
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start begins the schedule loop. No-op when disabled.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("backups disabled: missing S3 config or passphrase")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *Manager) checkSchedule(ctx context.Context) {
	now := time.Now().UTC()
	if now.Hour() != m.cfg.Hour || now.Minute() != 0 {
		return
	}

	m.mu.Lock()
	ranToday := m.lastBackup.Year() == now.Year() && m.lastBackup.YearDay() == now.YearDay()
	m.mu.Unlock()
	if ranToday {
		return
	}

	if err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup", "error", err)
		return
	}
	if err := m.cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup", "error", err)
	}
}

// RunNow takes a snapshot immediately: WAL checkpoint, copy, encrypt,
// upload.
func (m *Manager) RunNow(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("backup not configured")
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	objectKey := fmt.Sprintf("%s%s.db.enc", objectPrefix, timestamp)

	tmpDir := os.TempDir()
	dbCopy := filepath.Join(tmpDir, fmt.Sprintf("raven-backup-%s.db", timestamp))
	encFile := dbCopy + ".enc"
	defer os.Remove(dbCopy)
	defer os.Remove(encFile)

	if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	if err := copyFile(m.cfg.DBPath, dbCopy); err != nil {
		return fmt.Errorf("copy database: %w", err)
	}
	if err := SealFile(dbCopy, encFile, m.cfg.Passphrase); err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	encData, err := os.Open(encFile)
	if err != nil {
		return fmt.Errorf("open encrypted file: %w", err)
	}
	defer encData.Close()
	stat, err := encData.Stat()
	if err != nil {
		return fmt.Errorf("stat encrypted file: %w", err)
	}

	if _, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(objectKey),
		Body:          encData,
		ContentLength: aws.Int64(stat.Size()),
	}); err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}

	m.mu.Lock()
	m.lastBackup = time.Now().UTC()
	m.mu.Unlock()

	m.logger.Info("backup uploaded", "key", objectKey, "bytes", stat.Size())
	return nil
}

// cleanup deletes snapshots past the retention window.
func (m *Manager) cleanup(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)

	var token *string
	for {
		out, err := m.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(m.cfg.S3.Bucket),
			Prefix:            aws.String(objectPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}

		for _, obj := range out.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(m.cfg.S3.Bucket),
				Key:    obj.Key,
			}); err != nil {
				m.logger.Warn("delete old backup", "key", aws.ToString(obj.Key), "error", err)
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
