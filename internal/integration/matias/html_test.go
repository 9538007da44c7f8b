package matias

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHTML(t *testing.T) {
	huge := bytes.Repeat([]byte("x"), 4<<20)

	tests := []struct {
		name    string
		headers map[string]string
		body    []byte
		want    bool
	}{
		{name: "content type", headers: map[string]string{"content-type": "Text/HTML; charset=utf-8"}, body: []byte(`{}`), want: true},
		{name: "doctype", body: []byte("<!DOCTYPE html><html></html>"), want: true},
		{name: "leading whitespace", body: []byte("\r\n\t <Html>"), want: true},
		{name: "large page", body: append([]byte("<html>"), huge...), want: true},
		{name: "large json", headers: map[string]string{"Content-Type": "application/json"}, body: append([]byte(`{"data":"`), huge...), want: false},
		{name: "marker past the sniffed prefix", body: append(bytes.Repeat([]byte("a"), htmlSniffLen), []byte("<html>")...), want: false},
		{name: "empty", body: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isHTML(tt.headers, tt.body))
		})
	}
}
