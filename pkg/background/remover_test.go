package background

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/headshot/pkg/types"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	img.Set(3, 3, color.NRGBA{200, 10, 10, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRemoveBackground(t *testing.T) {
	cutout := pngBytes(t)
	var gotFile []byte
	var gotName string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/remove" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotFile, _ = io.ReadAll(file)

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(cutout)
	}))
	defer srv.Close()

	input := []byte("\xff\xd8\xff\xe0 pretend jpeg")
	out, mime, err := NewRembgClient(srv.URL+"/").RemoveBackground(context.Background(), input, "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, cutout, out)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, input, gotFile)
	assert.Equal(t, "image.jpg", gotName)
}

func TestRemoveBackgroundFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model crashed", http.StatusInternalServerError)
			},
		},
		{
			name:    "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {},
		},
		{
			name: "not an image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, _, err := NewRembgClient(srv.URL).RemoveBackground(context.Background(), pngBytes(t), "image/png")
			assert.ErrorIs(t, err, types.ErrBackgroundRemoval)
		})
	}
}

func TestRemoveBackgroundUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := NewRembgClient(url).RemoveBackground(context.Background(), pngBytes(t), "")
	assert.ErrorIs(t, err, types.ErrBackgroundRemoval)
}

func TestRemoveBackgroundNoData(t *testing.T) {
	_, _, err := NewRembgClient("http://127.0.0.1:1").RemoveBackground(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, types.ErrBackgroundRemoval)
}
