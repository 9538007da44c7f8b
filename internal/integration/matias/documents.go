package matias

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	ierr "github.com/flexprice/ebilling/internal/errors"
	"github.com/flexprice/ebilling/internal/types"
)

var submitPaths = map[types.DocumentKind]string{
	types.DocumentKindPOS:                   pathInvoice,
	types.DocumentKindInvoice:               pathInvoice,
	types.DocumentKindCreditNote:            pathCreditNote,
	types.DocumentKindDebitNote:             pathDebitNote,
	types.DocumentKindSupportDocument:       pathSupportDocument,
	types.DocumentKindSupportAdjustmentNote: pathSupportAdjustment,
}

// Submit dispatches the payload to the endpoint of its document kind
func (c *client) Submit(ctx context.Context, kind types.DocumentKind, payload map[string]any) *DocumentResult {
	path, ok := submitPaths[kind]
	if !ok {
		return failedResult(ierr.NewError("unsupported document kind").
			WithHintf("Document kind %s cannot be submitted", kind).
			Mark(ierr.ErrValidation))
	}
	return c.submit(ctx, "submit_"+strings.ToLower(string(kind)), path, payload)
}

func (c *client) SubmitInvoice(ctx context.Context, payload map[string]any) *DocumentResult {
	return c.Submit(ctx, types.DocumentKindInvoice, payload)
}

// SubmitPos sends a POS sale, which the provider issues through the invoice endpoint
func (c *client) SubmitPos(ctx context.Context, payload map[string]any) *DocumentResult {
	return c.Submit(ctx, types.DocumentKindPOS, payload)
}

func (c *client) SubmitCreditNote(ctx context.Context, payload map[string]any) *DocumentResult {
	return c.Submit(ctx, types.DocumentKindCreditNote, payload)
}

func (c *client) SubmitDebitNote(ctx context.Context, payload map[string]any) *DocumentResult {
	return c.Submit(ctx, types.DocumentKindDebitNote, payload)
}

func (c *client) SubmitSupportDocument(ctx context.Context, payload map[string]any) *DocumentResult {
	return c.Submit(ctx, types.DocumentKindSupportDocument, payload)
}

func (c *client) SubmitSupportAdjustmentNote(ctx context.Context, payload map[string]any) *DocumentResult {
	return c.Submit(ctx, types.DocumentKindSupportAdjustmentNote, payload)
}

func (c *client) submit(ctx context.Context, op, path string, payload map[string]any) *DocumentResult {
	resp, err := c.call(ctx, op, http.MethodPost, path, nil, payload)
	if err != nil {
		return failedResult(err)
	}

	var raw map[string]any
	if err := decodeJSON(resp, &raw); err != nil {
		return failedResult(err)
	}
	body := envelope(raw)

	result := &DocumentResult{
		Success:        true,
		Message:        pickString(body, "message", "msg", "status_message"),
		TrackID:        pickString(body, "trackId", "track_id", "XmlDocumentKey", "cufe", "uuid"),
		DocumentNumber: pickString(body, "documentNumber", "document_number", "number"),
		Prefix:         pickString(body, "prefix"),
	}
	if ok := pickBool(body, "success"); ok != nil {
		result.Success = *ok
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "the provider rejected the document"
		}
		result.Err = ierr.NewError("document submission rejected by provider").
			WithHint(msg).
			WithReportableDetails(map[string]any{
				"operation": op,
				"response":  truncate(string(resp.Body), 4096),
			}).
			Mark(ierr.ErrHTTPClient)
	}

	c.logger.Infow("submitted document to e-billing provider",
		"store", c.store.key(),
		"operation", op,
		"success", result.Success,
		"track_id", result.TrackID)
	return result
}

func failedResult(err error) *DocumentResult {
	return &DocumentResult{
		Success: false,
		Message: errorMessage(err),
		Err:     err,
	}
}

// errorMessage prefers the user facing hint over the internal chain
func errorMessage(err error) string {
	if hints := ierr.GetHints(err); len(hints) > 0 {
		return hints[0]
	}
	return err.Error()
}

func (c *client) GetStatus(ctx context.Context, query url.Values) *StatusResult {
	return c.status(ctx, "status", pathStatus, query)
}

func (c *client) GetStatusByTrackID(ctx context.Context, trackID string) *StatusResult {
	if strings.TrimSpace(trackID) == "" {
		return &StatusResult{Err: ierr.NewError("track id is required").Mark(ierr.ErrValidation)}
	}
	return c.status(ctx, "status_by_track_id", pathStatusByTrackID+url.PathEscape(trackID), nil)
}

func (c *client) status(ctx context.Context, op, path string, query url.Values) *StatusResult {
	resp, err := c.call(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return &StatusResult{Message: errorMessage(err), Err: err}
	}

	var raw map[string]any
	if err := decodeJSON(resp, &raw); err != nil {
		return &StatusResult{Message: errorMessage(err), Err: err}
	}
	body := envelope(raw)

	result := &StatusResult{
		Success: true,
		Status:  pickString(body, "status", "document_status", "statusDescription", "state"),
		IsValid: pickBool(body, "is_valid", "isValid", "IsValid", "valid"),
		Message: pickString(body, "message", "status_message", "StatusMessage"),
		Raw:     raw,
	}
	if ok := pickBool(body, "success"); ok != nil {
		result.Success = *ok
	}
	return result
}

func (c *client) DownloadPDF(ctx context.Context, trackID string, regenerate bool) *Download {
	return c.download(ctx, "download_pdf", http.MethodGet, pathPDF, trackID, regenerate)
}

// DownloadAttached fetches the ZIP of signed attachments, the provider exposes it as a POST
func (c *client) DownloadAttached(ctx context.Context, trackID string, regenerate bool) *Download {
	return c.download(ctx, "download_attached", http.MethodPost, pathAttached, trackID, regenerate)
}

func (c *client) download(ctx context.Context, op, method, prefix, trackID string, regenerate bool) *Download {
	if strings.TrimSpace(trackID) == "" {
		return nil
	}
	var query url.Values
	if regenerate {
		query = url.Values{"regenerate": []string{"1"}}
	}

	resp, err := c.call(ctx, op, method, prefix+url.PathEscape(trackID), query, nil)
	if err != nil {
		c.logger.Warnw("artifact download failed",
			"store", c.store.key(),
			"operation", op,
			"track_id", trackID,
			"error", err)
		return nil
	}

	contentType := headerValue(resp.Headers, "Content-Type")
	data := resp.Body
	// some deployments wrap the file as base64 in a JSON envelope
	if strings.Contains(strings.ToLower(contentType), "json") {
		var raw map[string]any
		if json.Unmarshal(resp.Body, &raw) != nil {
			return nil
		}
		body := envelope(raw)
		if ok := pickBool(body, "success"); ok != nil && !*ok {
			return nil
		}
		encoded := pickString(body, "file", "content", "pdf", "base64", "zip", "data")
		decoded, ok := decodeBase64(encoded)
		if !ok {
			return nil
		}
		data = decoded
		contentType = pickString(body, "content_type", "mime_type", "mimeType")
	}

	if len(data) == 0 {
		return nil
	}
	return &Download{Data: data, ContentType: contentType}
}

func (c *client) SearchDocuments(ctx context.Context, query url.Values) (map[string]any, error) {
	resp, err := c.call(ctx, "search_documents", http.MethodGet, pathDocuments, query, nil)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) GetLastDocument(ctx context.Context, resolution, prefix string) (*LastDocument, error) {
	query := url.Values{}
	if resolution != "" {
		query.Set("resolution", resolution)
	}
	if prefix != "" {
		query.Set("prefix", prefix)
	}

	resp, err := c.call(ctx, "last_document", http.MethodGet, pathLastDocument, query, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := decodeJSON(resp, &raw); err != nil {
		return nil, err
	}
	body := envelope(raw)

	last := &LastDocument{
		Number:     pickString(body, "number", "documentNumber", "document_number", "last_number"),
		Prefix:     pickString(body, "prefix"),
		Resolution: pickString(body, "resolution", "resolution_number"),
		Raw:        raw,
	}
	if last.Prefix == "" {
		last.Prefix = prefix
	}
	if last.Resolution == "" {
		last.Resolution = resolution
	}
	return last, nil
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
