package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/provider"
)

func TestDetectContentType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	tests := []struct {
		name string
		path string
		data []byte
		want string
	}{
		{name: "sniffed", path: "img/blob", data: png, want: "image/png"},
		{name: "text", path: "notes/a.md", data: []byte("hello"), want: "text/plain; charset=utf-8"},
		{name: "extension fallback", path: "data.json", data: nil, want: "application/json"},
		{name: "unknown", path: "blob", data: nil, want: provider.DefaultContentType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.DetectContentType(tt.path, tt.data))
		})
	}
}
