package adaptimg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionMax(t *testing.T) {
	d, err := NewImageResizeDefinition(300, Fixed(300), ModeMax, false)
	require.NoError(t, err)
	assert.Equal(t, NewBox(300, 100), d.CalculateSize(NewBox(600, 200)))
	assert.Equal(t, NewBox(100, 300), d.CalculateSize(NewBox(200, 600)))
	assert.Equal(t, NewBox(80, 80), d.CalculateSize(NewBox(80, 80)))

	up := MustImageResizeDefinition(300, Fixed(300), ModeMax, true)
	assert.Equal(t, NewBox(300, 300), up.CalculateSize(NewBox(80, 80)))
}

func TestDefinitionMinAndCrop(t *testing.T) {
	cover := MustImageResizeDefinition(300, Fixed(200), ModeMin, false)
	res := cover.CalculateSize(NewBox(1000, 1000))
	assert.Equal(t, NewBox(300, 300), res)
	assert.True(t, res.Contains(NewBox(300, 200)) && res.Width == 300)

	crop := MustImageResizeDefinition(300, Fixed(200), ModeCrop, false)
	assert.Equal(t, NewBox(300, 200), crop.CalculateSize(NewBox(1000, 1000)))
	assert.Equal(t, NewBox(300, 200), crop.CalculateSize(NewBox(300, 200)))
	assert.Equal(t, NewBox(250, 100), crop.CalculateSize(NewBox(250, 100)))

	cropUp := MustImageResizeDefinition(300, Fixed(200), ModeCrop, true)
	assert.Equal(t, NewBox(300, 200), cropUp.CalculateSize(NewBox(250, 100)))
}

func TestDefinitionSquareHeight(t *testing.T) {
	d := MustImageResizeDefinition(250, Fixed(0), ModeMax, false)
	assert.Equal(t, Fixed(250), d.Height())
}

func TestDefinitionInvalid(t *testing.T) {
	_, err := NewImageResizeDefinition(0, Fixed(100), ModeMax, false)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewImageResizeDefinition(100, Fixed(-3), ModeMax, false)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewImageResizeDefinition(100, Unrestricted, ModeMin, false)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewImageResizeDefinition(100, Unrestricted, ModeCrop, false)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewImageResizeDefinition(100, Fixed(100), Mode("fill"), false)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	d, err := NewImageResizeDefinition(100, Unrestricted, "", false)
	require.NoError(t, err)
	assert.Equal(t, ModeMax, d.Mode())
}

func TestDefinitionHash(t *testing.T) {
	a := MustImageResizeDefinition(640, Unrestricted, ModeMax, false)
	b := MustImageResizeDefinition(640, Unrestricted, ModeMax, false)
	assert.Equal(t, a.TransformationHash(), b.TransformationHash())
	assert.Len(t, a.TransformationHash(), 40)

	h := a.TransformationHash()
	a.AddPostFilter(NewStrip(), 0)
	assert.Equal(t, h, a.TransformationHash())

	a.AddFilter(NewSharpen(), 1)
	assert.NotEqual(t, h, a.TransformationHash())

	h = b.TransformationHash()
	b.SetScaleAlgorithm(ScaleLanczos)
	assert.NotEqual(t, h, b.TransformationHash())
	assert.Equal(t, ScaleLanczos, b.ScaleAlgorithm())
	assert.Equal(t, 1, b.ResizeTransformation().Len())

	c := MustImageResizeDefinition(640, Unrestricted, ModeMax, true)
	assert.NotEqual(t, MustImageResizeDefinition(640, Unrestricted, ModeMax, false).TransformationHash(), c.TransformationHash())
}

func TestDefinitionPostFiltersKeepSize(t *testing.T) {
	d := MustImageResizeDefinition(300, Fixed(300), ModeMax, false)
	d.AddPostFilter(NewStrip(), 0)
	d.AddFilter(NewSharpen(), 0)
	assert.Equal(t, NewBox(300, 100), d.CalculateSize(NewBox(600, 200)))
	assert.Equal(t, 1, d.PostTransformation().Len())
	assert.Equal(t, 2, d.ResizeTransformation().Len())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("crop")
	assert.NoError(t, err)
	assert.Equal(t, ModeCrop, m)

	_, err = ParseMode("stretch")
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}
