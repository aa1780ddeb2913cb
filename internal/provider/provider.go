// Package provider holds the types shared by the generative provider clients.
package provider

import (
	"mime"
	"strings"
)

// Media is one generated asset as returned by a provider
type Media struct {
	Data     []byte
	MIMEType string
}

var extensions = map[string]string{
	"image/png":   "png",
	"image/jpeg":  "jpg",
	"image/webp":  "webp",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"video/mp4":   "mp4",
}

// Storage key extensions for media whose MIME type is not recognized
const (
	DefaultImageExtension = "png"
	DefaultAudioExtension = "wav"
)

// Extension returns the file extension used for storage keys of a MIME type.
// Unknown types map to fallback.
func Extension(mimeType, fallback string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := extensions[base]; ok {
		return ext
	}
	return fallback
}
