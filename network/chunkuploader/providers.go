package chunkuploader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileChunkProvider serves a file on disk as the single chunk of an upload.
type FileChunkProvider struct {
	file *os.File
	size int64
	mu   sync.Mutex
}

// NewFileChunkProvider opens path. The caller must Close the provider.
func NewFileChunkProvider(path string) (*FileChunkProvider, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() == 0 {
		_ = file.Close()
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	return &FileChunkProvider{file: file, size: info.Size()}, nil
}

// NumChunks ...
func (p *FileChunkProvider) NumChunks() int {
	return 1
}

// ChunkSize ...
func (p *FileChunkProvider) ChunkSize(int) int64 {
	return p.size
}

// GetChunk reads the file from the start, so a retried chunk is sent in full.
func (p *FileChunkProvider) GetChunk(index int) (io.Reader, error) {
	if index != 0 {
		return nil, fmt.Errorf("chunk index %d out of range [0, 1)", index)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind file: %w", err)
	}
	data := make([]byte, p.size)
	if _, err := io.ReadFull(p.file, data); err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return bytes.NewReader(data), nil
}

// Close closes the underlying file.
func (p *FileChunkProvider) Close() error {
	return p.file.Close()
}

// BytesChunkProvider serves an in-memory payload as the single chunk of an upload.
// An empty payload has no chunks.
type BytesChunkProvider struct {
	data []byte
}

// NewBytesChunkProvider ...
func NewBytesChunkProvider(data []byte) *BytesChunkProvider {
	return &BytesChunkProvider{data: data}
}

// NumChunks ...
func (p *BytesChunkProvider) NumChunks() int {
	if len(p.data) == 0 {
		return 0
	}
	return 1
}

// ChunkSize ...
func (p *BytesChunkProvider) ChunkSize(int) int64 {
	return int64(len(p.data))
}

// GetChunk ...
func (p *BytesChunkProvider) GetChunk(index int) (io.Reader, error) {
	if index != 0 || len(p.data) == 0 {
		return nil, fmt.Errorf("chunk index %d out of range [0, %d)", index, p.NumChunks())
	}
	return bytes.NewReader(p.data), nil
}
