// Package storage stores uploaded meal photos until they are analysed.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// Store is a bucket of objects addressed by slash-separated paths.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	// PublicURL returns a URL the model provider can fetch the object from.
	PublicURL(key string) string
	// Remove deletes keys. Missing objects are not an error.
	Remove(ctx context.Context, keys ...string) error
}

// ContentTypeForKey guesses the image content type from the key's extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return ""
	}
}

// ExtensionForContentType is the inverse of ContentTypeForKey for accepted uploads.
func ExtensionForContentType(ct string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(ct)) {
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/webp":
		return ".webp", true
	default:
		return "", false
	}
}

// CleanKey normalizes a client-supplied key. It returns "" for keys that
// escape the bucket root.
func CleanKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" || strings.Contains(key, "\\") {
		return ""
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" || strings.Contains(key, "..") {
		return ""
	}
	return strings.TrimPrefix(cleaned, "/")
}

