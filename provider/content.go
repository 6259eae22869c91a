package provider

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when neither the content nor the extension
// identify the file.
const DefaultContentType = "application/octet-stream"

// DetectContentType sniffs the Content-Type of data, falling back to the
// extension of p.
func DetectContentType(p string, data []byte) string {
	if len(data) > 0 {
		head := data
		if len(head) > 3072 {
			head = head[:3072]
		}
		if mt := mimetype.Detect(head); mt != nil && mt.String() != DefaultContentType {
			return mt.String()
		}
	}

	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
