package s3

import (
	"testing"

	"github.com/flexprice/ebilling/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestArtifactObjectKey(t *testing.T) {
	a := &Artifact{
		TenantID:    "tenant_1",
		DocumentID:  "edoc_1",
		Kind:        types.DocumentFileKindPDF,
		ContentType: "application/pdf",
	}
	assert.Equal(t, "ebilling/tenant_1/edoc_1/pdf.pdf", a.ObjectKey("ebilling/"))
	assert.Equal(t, "tenant_1/edoc_1/pdf.pdf", a.ObjectKey(""))

	a.Kind = types.DocumentFileKindAttached
	a.ContentType = "application/zip"
	assert.Equal(t, "ebilling/tenant_1/edoc_1/attached.zip", a.ObjectKey("ebilling"))

	a.ContentType = "text/xml"
	assert.Equal(t, "xml", a.Extension())
}
