package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\a.txt`:   "a.txt",
		".htaccess":           "attachment",
		"":                    "attachment",
		"  spaced name.png  ": "spaced name.png",
	}
	for in, want := range tests {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAttachmentPathIsNamespacedAndUnique(t *testing.T) {
	a := AttachmentPath("t-1", "../x.txt")
	b := AttachmentPath("t-1", "x.txt")
	if !strings.HasPrefix(a, "tickets/t-1/") || !strings.HasSuffix(a, "_x.txt") {
		t.Fatalf("unexpected path %q", a)
	}
	if a == b {
		t.Fatal("paths for the same file name must differ")
	}
}

type fakeObjectStore struct {
	exists  bool
	made    []string
	objects map[string]string
	types   map[string]string
}

func (f *fakeObjectStore) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeObjectStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeObjectStore) PutObject(_ context.Context, _ string, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.objects == nil {
		f.objects, f.types = map[string]string{}, map[string]string{}
	}
	f.objects[name] = string(data)
	f.types[name] = opts.ContentType
	return minio.UploadInfo{Key: name, Size: size}, nil
}

func TestMinioSinkCreatesBucketAndStores(t *testing.T) {
	store := &fakeObjectStore{}
	sink, err := NewMinioSink(context.Background(), store, "attachments")
	if err != nil {
		t.Fatalf("NewMinioSink: %v", err)
	}
	if len(store.made) != 1 || store.made[0] != "attachments" {
		t.Fatalf("made = %v", store.made)
	}
	if err := sink.Put(context.Background(), "tickets/1/a.txt", []byte("hello"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if store.objects["tickets/1/a.txt"] != "hello" {
		t.Fatalf("stored %q", store.objects["tickets/1/a.txt"])
	}
	if store.types["tickets/1/a.txt"] != DefaultMimeType {
		t.Fatalf("content type = %q", store.types["tickets/1/a.txt"])
	}
}

func TestMemorySinkCopiesContent(t *testing.T) {
	sink := NewMemorySink()
	buf := []byte("abc")
	_ = sink.Put(context.Background(), "p", buf, "text/plain")
	buf[0] = 'z'
	obj, ok := sink.Get("p")
	if !ok || string(obj.Content) != "abc" {
		t.Fatalf("got %q, %v", obj.Content, ok)
	}
}
