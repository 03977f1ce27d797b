package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		mime    string
		attrs   []string
		base64  bool
		payload string
	}{
		{
			name:    "base64 css",
			raw:     "data:text/css;base64,Ym9keXtjb2xvcjpyZWR9",
			mime:    "text/css",
			base64:  true,
			payload: "body{color:red}",
		},
		{
			name:    "charset attribute preserved",
			raw:     "data:text/html;charset=utf-8,%3Cp%3Ehi%3C%2Fp%3E",
			mime:    "text/html",
			attrs:   []string{"charset=utf-8"},
			payload: "<p>hi</p>",
		},
		{
			name:    "no media type",
			raw:     "data:,plain",
			mime:    "",
			payload: "plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDataURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.mime, d.MIME)
			assert.Equal(t, tt.attrs, d.Attrs)
			assert.Equal(t, tt.base64, d.Base64)
			assert.Equal(t, tt.payload, string(d.Payload))
		})
	}
}

func TestDataURLString(t *testing.T) {
	d, err := ParseDataURL("data:text/css;charset=utf-8;base64,Ym9keXtjb2xvcjpyZWR9")
	require.NoError(t, err)
	assert.Equal(t, "data:text/css;charset=utf-8;base64,Ym9keXtjb2xvcjpyZWR9", d.String())

	d.Payload = []byte("a{}")
	assert.Equal(t, "data:text/css;charset=utf-8;base64,YXt9", d.String())

	plain := &DataURL{MIME: "text/plain", Payload: []byte("50% #1")}
	assert.Equal(t, "data:text/plain,50%25 %231", plain.String())
}

func TestParseDataURLInvalid(t *testing.T) {
	for _, raw := range []string{"http://x", "data:text/plain", "data:;base64,!!!"} {
		_, err := ParseDataURL(raw)
		assert.ErrorIs(t, err, ErrInvalidDataURL, raw)
	}
	assert.Equal(t, "text/plain", (&DataURL{}).MediaType())
	assert.True(t, IsDataURL("  DATA:,x"))
}
