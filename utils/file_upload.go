package utils

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"veritas-client/llm"
)

// ErrFileTooLarge is returned when a file exceeds the loader's size limit
var ErrFileTooLarge = errors.New("file too large")

// ErrUnsupportedType is returned for files that are neither text nor supported media
var ErrUnsupportedType = errors.New("file type not supported")

// MediaLoader turns files on disk into submittable content
type MediaLoader struct {
	maxFileSize int64
}

// NewMediaLoader creates a loader rejecting files larger than maxFileSize bytes
func NewMediaLoader(maxFileSize int64) *MediaLoader {
	return &MediaLoader{maxFileSize: maxFileSize}
}

// Load reads filePath. Text files become text content; image, audio and
// video files become media content named after the file.
func (h *MediaLoader) Load(filePath string) (llm.Content, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return llm.Content{}, WrapError(err, "file not found")
	}
	if info.IsDir() {
		return llm.Content{}, fmt.Errorf("%s is a directory", filePath)
	}
	if info.Size() > h.maxFileSize {
		return llm.Content{}, fmt.Errorf("%w: %s (max %s)", ErrFileTooLarge, FormatFileSize(info.Size()), FormatFileSize(h.maxFileSize))
	}

	mimeType, err := h.detectMimeType(filePath)
	if err != nil {
		return llm.Content{}, WrapError(err, "failed to detect file type")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return llm.Content{}, WrapError(err, "failed to read file")
	}

	switch {
	case strings.HasPrefix(mimeType, "text/"):
		return llm.TextContent(string(data)), nil
	case strings.HasPrefix(mimeType, "image/"),
		strings.HasPrefix(mimeType, "audio/"),
		strings.HasPrefix(mimeType, "video/"):
		return llm.MediaContent(data, mimeType, filepath.Base(filePath)), nil
	}
	return llm.Content{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
}

// detectMimeType detects the MIME type by extension, then by sniffing the header
func (h *MediaLoader) detectMimeType(filePath string) (string, error) {
	if mimeType := GetMimeType(filePath); mimeType != "application/octet-stream" {
		return mimeType, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// Read first 512 bytes for content detection
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}

	mimeType := http.DetectContentType(buffer[:n])
	// Remove charset if present
	if idx := strings.Index(mimeType, ";"); idx > 0 {
		mimeType = mimeType[:idx]
	}
	return mimeType, nil
}
