// Package archive keeps raw upload bytes in Google Cloud Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/JonMunkholm/transactions/internal/config"
)

const uploadTimeout = 2 * time.Minute

// ObjectOpener returns a writer for a new object. Closing it commits the
// object.
type ObjectOpener func(ctx context.Context, name string, meta map[string]string) io.WriteCloser

// GCS implements core.Archiver.
type GCS struct {
	bucket string
	prefix string
	open   ObjectOpener
	now    func() time.Time
	closer io.Closer
}

// NewGCS connects to Cloud Storage using cfg.CredentialsFile, or
// Application Default Credentials when it is empty.
func NewGCS(ctx context.Context, cfg config.ArchiveConfig) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	bkt := client.Bucket(cfg.Bucket)
	open := func(ctx context.Context, name string, meta map[string]string) io.WriteCloser {
		w := bkt.Object(name).NewWriter(ctx)
		w.ContentType = "text/csv"
		w.Metadata = meta
		return w
	}
	a := NewWithOpener(cfg.Bucket, cfg.Prefix, open)
	a.closer = client
	return a, nil
}

// NewWithOpener builds an archiver around an arbitrary object opener.
func NewWithOpener(bucket, prefix string, open ObjectOpener) *GCS {
	return &GCS{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		open:   open,
		now:    time.Now,
	}
}

// Archive stores data and returns its gs:// URI.
func (a *GCS) Archive(ctx context.Context, uploadID, fileName string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	name := ObjectName(a.prefix, a.now(), uploadID, fileName)
	w := a.open(ctx, name, map[string]string{
		"upload_id":     uploadID,
		"original_name": fileName,
	})

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return "gs://" + a.bucket + "/" + name, nil
}

// Close releases the storage client.
func (a *GCS) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// ObjectName builds prefix/YYYY/MM/DD/<uploadID>-<base name>, dated in UTC.
func ObjectName(prefix string, at time.Time, uploadID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.csv"
	}
	return path.Join(prefix, at.UTC().Format("2006/01/02"), uploadID+"-"+base)
}
