package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtension(t *testing.T) {
	tests := []struct {
		mime     string
		fallback string
		want     string
	}{
		{"image/png", DefaultImageExtension, "png"},
		{"image/jpeg", DefaultImageExtension, "jpg"},
		{"audio/mpeg", DefaultAudioExtension, "mp3"},
		{"audio/wav", DefaultAudioExtension, "wav"},
		{"IMAGE/PNG", DefaultImageExtension, "png"},
		{"audio/wav; charset=binary", DefaultAudioExtension, "wav"},
		{"application/octet-stream", DefaultImageExtension, "png"},
		{"application/octet-stream", DefaultAudioExtension, "wav"},
		{"", DefaultAudioExtension, "wav"},
	}

	for _, tt := range tests {
		t.Run(tt.mime+"/"+tt.fallback, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.mime, tt.fallback))
		})
	}
}
