package imagecode

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ProducesDecodablePNG(t *testing.T) {
	data, err := Render("1234567890", "123456")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Greater(t, bounds.Dx(), 400, "canvas must fit the barcode plus margins")
	assert.Greater(t, bounds.Dy(), 120)
}

func TestRender_IsDeterministic(t *testing.T) {
	first, err := Render("1234567890", "123456")
	require.NoError(t, err)
	second, err := Render("1234567890", "123456")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_DifferentPinDifferentImage(t *testing.T) {
	first, err := Render("1234567890", "111111")
	require.NoError(t, err)
	second, err := Render("1234567890", "222222")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestRender_EmptyCodeFails(t *testing.T) {
	_, err := Render("", "123456")
	assert.Error(t, err)
}
