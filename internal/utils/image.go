package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// DataURL encodes raw bytes as a data URL of the given MIME type
func DataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DetectImageMime sniffs the MIME type from the leading bytes
func DetectImageMime(data []byte) string {
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}
	return http.DetectContentType(data)
}

// GetMimeTypeFromExtension returns MIME type for a file extension
func GetMimeTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// IsValidImageExtension checks if the file extension is a frame format we can decode
func IsValidImageExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return true
	}
	return false
}
