package s3

import (
	"fmt"
	"strings"

	"github.com/flexprice/ebilling/internal/types"
)

// Artifact is a downloaded document file archived to object storage
type Artifact struct {
	TenantID    string
	DocumentID  string
	TrackID     string
	Kind        types.DocumentFileKind
	ContentType string
	Data        []byte
}

// Extension returns the file extension matching the content type
func (a *Artifact) Extension() string {
	switch {
	case a.ContentType == "application/pdf":
		return "pdf"
	case a.ContentType == "application/zip":
		return "zip"
	case strings.HasSuffix(a.ContentType, "/xml"):
		return "xml"
	default:
		return "bin"
	}
}

// ObjectKey builds {prefix}/{tenant}/{document}/{kind}.{ext}
func (a *Artifact) ObjectKey(prefix string) string {
	key := fmt.Sprintf("%s/%s/%s.%s", a.TenantID, a.DocumentID, strings.ToLower(string(a.Kind)), a.Extension())
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
