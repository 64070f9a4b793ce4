package gcsuploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://my-bucket/path/to/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "path/to/file.pdf", object)

	for _, bad := range []string{"https://x/y", "gs://bucket", "gs://bucket/", "gs:///obj"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestAttachmentObjectName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"receipt.pdf", "attachments/acc/tx1/receipt.pdf"},
		{"../../etc/passwd", "attachments/acc/tx1/passwd"},
		{`C:\scans\r.jpg`, "attachments/acc/tx1/r.jpg"},
		{"", "attachments/acc/tx1/attachment"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AttachmentObjectName("acc", "tx1", tt.filename), tt.filename)
	}
}

func TestExtractFilenameFromGCSURI(t *testing.T) {
	assert.Equal(t, "file.pdf", ExtractFilenameFromGCSURI("gs://bucket/folder/file.pdf"))
	assert.Equal(t, GCSURI("b", "o/p.txt"), "gs://b/o/p.txt")
}
