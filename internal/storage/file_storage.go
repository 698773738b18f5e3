package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileImageFetcher reads images from the local filesystem
type FileImageFetcher struct {
	maxBytes int64
}

func NewFileImageFetcher() *FileImageFetcher {
	return &FileImageFetcher{maxBytes: DefaultMaxImageBytes}
}

func (f *FileImageFetcher) FetchImage(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
