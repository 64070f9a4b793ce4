package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// UploadObjectWithClient uploads data to a GCS bucket under the given object
// name and returns the gs:// URI of the object.
func UploadObjectWithClient(ctx context.Context, client *storage.Client, bucketName, objectName string, data []byte, contentType string) (string, error) {
	// Bound each upload
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy data to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return GCSURI(bucketName, objectName), nil
}

// GCSURI formats a gs:// URI.
func GCSURI(bucketName, objectName string) string {
	return "gs://" + bucketName + "/" + objectName
}

// ParseGCSURI splits gs://bucket/path/to/file into bucket and object.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	bucket, object, ok := strings.Cut(strings.TrimPrefix(gcsURI, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return bucket, object, nil
}

// AttachmentObjectName is the object path of one transaction attachment.
// e.g. ("acc-1", "tx 9", "receipt.pdf") → "attachments/acc-1/tx 9/receipt.pdf"
func AttachmentObjectName(accountRef, transactionRef, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	return path.Join("attachments", accountRef, transactionRef, name)
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func ExtractFilenameFromGCSURI(uri string) string {
	_, object, err := ParseGCSURI(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "gs://")
	}
	return path.Base(object)
}
