package report

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanked(t *testing.T) {
	got := Ranked(map[string]float64{"koi_depth": 0.2, "koi_period": 0.5, "koi_prad": 0.2, "koi_duration": 0.1})
	want := []Importance{
		{"koi_period", 0.5},
		{"koi_depth", 0.2},
		{"koi_prad", 0.2},
		{"koi_duration", 0.1},
	}
	assert.Equal(t, want, got)
}

func TestFeatureImportancePNG(t *testing.T) {
	data, err := FeatureImportancePNG("random_forest", map[string]float64{
		"koi_period": 0.4, "koi_duration": 0.3, "koi_depth": 0.2, "koi_prad": 0.1,
	})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	assert.Greater(t, b.Dx(), 0)
	assert.Greater(t, b.Dy(), 0)
}

func TestFeatureImportancePNGEmpty(t *testing.T) {
	_, err := FeatureImportancePNG("svm", nil)
	assert.Error(t, err)
}
