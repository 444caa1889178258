package attachcodec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrhodin/floatinbox/pkg/courier"
)

func serve(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pointerFor(url string, enc *Encrypted, filename string) *courier.RemoteAttachmentPayload {
	return &courier.RemoteAttachmentPayload{
		URL:           url,
		ContentDigest: enc.Digest,
		Salt:          enc.Salt,
		Nonce:         enc.Nonce,
		Secret:        enc.Secret,
		Scheme:        "https://",
		Filename:      filename,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := &Codec{}
	original := Attachment{
		Filename: "cat.png",
		MimeType: "image/png",
		Data:     []byte("pretend this is a png"),
	}

	enc, err := codec.EncodeEncrypted(original)
	require.NoError(t, err)
	assert.NotEmpty(t, enc.Digest)
	assert.Len(t, enc.Secret, 32)
	assert.Len(t, enc.Salt, 32)
	assert.Len(t, enc.Nonce, 12)
	assert.NotContains(t, string(enc.Payload), "pretend", "payload must be ciphertext")

	srv := serve(t, enc.Payload)
	loaded, err := codec.Load(context.Background(), pointerFor(srv.URL+"/cat.png", enc, "cat.png"))
	require.NoError(t, err)
	assert.Equal(t, original, *loaded)
}

func TestCodec_FreshMaterialPerEncode(t *testing.T) {
	codec := &Codec{}
	att := Attachment{Filename: "x", Data: []byte("same bytes")}

	first, err := codec.EncodeEncrypted(att)
	require.NoError(t, err)
	second, err := codec.EncodeEncrypted(att)
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Payload, second.Payload)
}

func TestCodec_DigestMismatchRejected(t *testing.T) {
	codec := &Codec{}
	enc, err := codec.EncodeEncrypted(Attachment{Filename: "x", Data: []byte("data")})
	require.NoError(t, err)

	tampered := append([]byte(nil), enc.Payload...)
	tampered[0] ^= 0xff
	srv := serve(t, tampered)

	_, err = codec.Load(context.Background(), pointerFor(srv.URL+"/x", enc, "x"))
	require.ErrorContains(t, err, "digest mismatch")
}

func TestCodec_WrongSecretRejected(t *testing.T) {
	codec := &Codec{}
	enc, err := codec.EncodeEncrypted(Attachment{Filename: "x", Data: []byte("data")})
	require.NoError(t, err)
	srv := serve(t, enc.Payload)

	ptr := pointerFor(srv.URL+"/x", enc, "x")
	ptr.Secret = make([]byte, 32)
	_, err = codec.Load(context.Background(), ptr)
	require.ErrorContains(t, err, "decrypt")
}

func TestCodec_UnreachableHost(t *testing.T) {
	codec := &Codec{}
	enc, err := codec.EncodeEncrypted(Attachment{Filename: "x", Data: []byte("data")})
	require.NoError(t, err)

	_, err = codec.Load(context.Background(), pointerFor("http://127.0.0.1:1/x", enc, "x"))
	require.Error(t, err)
}

func TestCodec_EmptyPointer(t *testing.T) {
	codec := &Codec{}
	_, err := codec.Load(context.Background(), nil)
	require.Error(t, err)
	_, err = codec.Load(context.Background(), &courier.RemoteAttachmentPayload{})
	require.Error(t, err)
}

func TestCodec_SniffsMimeTypeWhenMissing(t *testing.T) {
	codec := &Codec{}
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	enc, err := codec.EncodeEncrypted(Attachment{Filename: "cat", Data: pngHeader})
	require.NoError(t, err)

	srv := serve(t, enc.Payload)
	loaded, err := codec.Load(context.Background(), pointerFor(srv.URL+"/cat", enc, "cat"))
	require.NoError(t, err)
	assert.Equal(t, "image/png", loaded.MimeType)
}
