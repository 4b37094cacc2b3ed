package storagesvc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

func TestNormalizeImage(t *testing.T) {
	t.Run("png is downscaled and stays png", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, testImage(400, 200)))

		data, ct, err := NormalizeImage(&buf, 100)
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)

		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())
		assert.Equal(t, 50, img.Bounds().Dy())
	})

	t.Run("small jpeg keeps its size", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, testImage(80, 60), nil))

		data, ct, err := NormalizeImage(&buf, 100)
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", ct)

		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 80, img.Bounds().Dx())
	})

	t.Run("not an image", func(t *testing.T) {
		_, _, err := NormalizeImage(strings.NewReader("%PDF-1.4"), 100)
		assert.Error(t, err)
	})
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("evidence", "../my photo (1).JPG", "20240615")
	assert.True(t, strings.HasPrefix(key, "evidence/20240615/"), key)
	assert.True(t, strings.HasSuffix(key, "-my_photo_1_.JPG"), key)
	assert.NotEqual(t, key, ObjectKey("evidence", "../my photo (1).JPG", "20240615"))
}
