package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType determines the MIME type of an object.
//
// Detection priority:
// 1. providedType, if non-empty
// 2. the key's file extension
// 3. sniffing the first 512 bytes of data, if given
// 4. "application/octet-stream"
func DetectContentType(providedType, key string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(key))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// AllowedImageTypes are the formats the image host serves.
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// IsAllowedImageType reports whether contentType is a proxied image format.
func IsAllowedImageType(contentType string) bool {
	return AllowedImageTypes[baseType(contentType)]
}

// baseType strips parameters such as charset and lowercases the type.
func baseType(contentType string) string {
	t, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(t))
}
