package artifact

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/ctapi/internal/models"
)

func TestMaterializeRoundTrip(t *testing.T) {
	payload := []byte{0x30, 0x82, 0x01, 0x0a, 0x00, 0xff, 0x10}
	rec := &models.CertificateRecord{
		ID:        "5f1b2c3d4e5f6a7b8c9d0e1f",
		RawBase64: base64.StdEncoding.EncodeToString(payload),
	}

	a, err := Materialize(rec)
	require.NoError(t, err)
	assert.Equal(t, payload, a.Body)
	assert.Equal(t, "5f1b2c3d4e5f6a7b8c9d0e1f.der", a.Filename)
	assert.Equal(t, "application/octet-stream", a.ContentType)
	assert.Equal(t, "attachment; filename=5f1b2c3d4e5f6a7b8c9d0e1f.der", a.ContentDisposition())
}

func TestMaterializeDecodesEveryTime(t *testing.T) {
	rec := &models.CertificateRecord{
		ID:        "5f1b2c3d4e5f6a7b8c9d0e1f",
		RawBase64: base64.StdEncoding.EncodeToString([]byte("first")),
	}

	a, err := Materialize(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), a.Body)

	rec.RawBase64 = base64.StdEncoding.EncodeToString([]byte("second"))
	a, err = Materialize(rec)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), a.Body)
}

func TestMaterializeCorruptPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not base64", "this is not base64!"},
		{"url alphabet", "-_-_"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Materialize(&models.CertificateRecord{ID: "bad", RawBase64: tt.raw})
			assert.Nil(t, a)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestMaterializeNilRecord(t *testing.T) {
	_, err := Materialize(nil)
	assert.ErrorIs(t, err, ErrDecode)
}
