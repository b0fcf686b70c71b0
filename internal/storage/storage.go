// Package storage writes attachment blobs to an object store.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultMimeType is used when an attachment declares no content type.
const DefaultMimeType = "application/octet-stream"

// Sink stores blobs addressed by path.
type Sink interface {
	Put(ctx context.Context, path string, content []byte, mimeType string) error
}

// AttachmentPath builds the storage path of an attachment: a per-ticket folder
// and a random prefix so equal file names never collide.
func AttachmentPath(ticketID, fileName string) string {
	return fmt.Sprintf("tickets/%s/%s_%s", ticketID, uuid.NewString(), SanitizeFileName(fileName))
}

// SanitizeFileName strips path components and hidden-file prefixes.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := strings.TrimSpace(filepath.Base(name))
	if base == "" || base == "." || base == ".." || base == "/" || strings.HasPrefix(base, ".") {
		return "attachment"
	}
	return base
}

// MemorySink keeps blobs in memory.
type MemorySink struct {
	mu    sync.RWMutex
	blobs map[string]Object
}

// Object is a stored blob.
type Object struct {
	Content  []byte
	MimeType string
}

// NewMemorySink builds an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{blobs: map[string]Object{}}
}

// Put implements Sink.
func (m *MemorySink) Put(ctx context.Context, path string, content []byte, mimeType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[path] = Object{Content: append([]byte(nil), content...), MimeType: mimeType}
	return nil
}

// Get returns the blob stored at path.
func (m *MemorySink) Get(path string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.blobs[path]
	return obj, ok
}

// Len returns the number of stored blobs.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
