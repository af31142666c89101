// Package media loads the file payload of a submission from a local path, an http(s) URL or an S3 object.
package media

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// Payload is a file to be submitted. The content either sits in Data or in the local file at Path.
type Payload struct {
	Filename    string
	ContentType string
	Size        int64
	// Data holds the content when it is kept in memory. It takes precedence over Path.
	Data []byte
	// Path is the local file with the content.
	Path string

	tempDir string
}

// FromBytes wraps in-memory content, e.g. a file received from a form upload.
func FromBytes(filename string, data []byte) *Payload {
	return &Payload{
		Filename:    filepath.Base(filename),
		ContentType: detectContentType(filename, data),
		Size:        int64(len(data)),
		Data:        data,
	}
}

// InMemory reports whether the content is held in Data.
func (p *Payload) InMemory() bool {
	return p.Data != nil
}

// Close removes any temporary download backing the payload. Safe to call more than once.
func (p *Payload) Close() error {
	if p == nil || p.tempDir == "" {
		return nil
	}
	dir := p.tempDir
	p.tempDir = ""
	return os.RemoveAll(dir)
}

// detectContentType prefers the extension and falls back to sniffing head.
func detectContentType(filename string, head []byte) string {
	if ext := filepath.Ext(filename); ext != "" {
		if contentType := mime.TypeByExtension(strings.ToLower(ext)); contentType != "" {
			return contentType
		}
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return defaultContentType
}
