package features

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

func frame(t *testing.T, csv string) *dataset.Frame {
	t.Helper()
	f, err := dataset.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return f
}

func TestPreprocess(t *testing.T) {
	f := frame(t, `koi_model_snr,koi_disposition,koi_period,kepid,koi_prad
10,CONFIRMED,1.5,1,2.0
20,candidate,2.5,2,
30,False Positive,,3,4.0
40,NOT DISPOSITIONED,9.9,4,9.9
50,,9.9,5,9.9
60, confirmed ,4.5,6,8.0
`)
	res, err := Preprocess(f)
	require.NoError(t, err)

	assert.Equal(t, "koi_disposition", res.LabelColumn)
	assert.Equal(t, []string{"koi_period", "koi_prad", "koi_model_snr"}, res.FeatureNames, "candidate order, not file order")
	assert.Equal(t, []int{Confirmed, Candidate, FalsePositive, Confirmed}, res.Y)
	assert.Equal(t, 2, res.DroppedRows)
	assert.Equal(t, 2, res.Imputed)

	r, c := res.X.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 3, c)

	// medians over the kept rows only
	assert.InDelta(t, 2.5, res.Medians[0], 1e-12) // median(1.5, 2.5, 4.5)
	assert.InDelta(t, 4.0, res.Medians[1], 1e-12) // median(2, 4, 8)
	assert.Equal(t, 2.5, res.X.At(2, 0))
	assert.Equal(t, 4.0, res.X.At(1, 1))
	assert.Equal(t, 30.0, res.X.At(2, 2))

	y := res.YVec()
	assert.Equal(t, 4, y.Len())
	assert.Equal(t, float64(Confirmed), y.AtVec(3))
}

func TestPreprocessLabelAliases(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{"disposition", "disposition,koi_period\nCONFIRMED,1\n", "disposition"},
		{"exoplanet_status", "exoplanet_status,koi_period\nCANDIDATE,1\n", "exoplanet_status"},
		{"first alias wins", "exoplanet_status,koi_disposition,koi_period\nCANDIDATE,CONFIRMED,1\n", "koi_disposition"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Preprocess(frame(t, tt.csv))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.LabelColumn)
		})
	}
}

func TestPreprocessErrors(t *testing.T) {
	tests := []struct {
		name       string
		csv        string
		schema     bool
		validation bool
	}{
		{"no label column", "status,koi_period\nCONFIRMED,1\n", true, false},
		{"no feature column", "koi_disposition,foo\nCONFIRMED,1\n", true, false},
		{"neither", "a,b\n1,2\n", true, false},
		{"no mapped rows", "koi_disposition,koi_period\nUNKNOWN,1\n", true, false},
		{"all missing column", "koi_disposition,koi_period,koi_prad\nCONFIRMED,1,\nCANDIDATE,2,NaN\n", true, false},
		{"non numeric", "koi_disposition,koi_period\nCONFIRMED,fast\n", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Preprocess(frame(t, tt.csv))
			require.Error(t, err)
			var se *errors.SchemaError
			var ve *errors.ValidationError
			assert.Equal(t, tt.schema, errors.As(err, &se), err.Error())
			assert.Equal(t, tt.validation, errors.As(err, &ve), err.Error())
		})
	}
}

func TestEncodeLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		ok   bool
	}{
		{"CONFIRMED", Confirmed, true},
		{"confirmed", Confirmed, true},
		{"  Candidate ", Candidate, true},
		{"false positive", FalsePositive, true},
		{"", 0, false},
		{"REFUTED", 0, false},
	}
	for _, tt := range tests {
		got, ok := EncodeLabel(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestCatalogue(t *testing.T) {
	assert.Len(t, CandidateFeatures, 12)
	assert.Equal(t, []string{"koi_period", "koi_duration", "koi_depth", "koi_prad"}, RequiredFeatures)
	assert.Equal(t, []string{"False Positive", "Candidate", "Confirmed"}, ClassNameList())
	assert.Len(t, LabelMapping, 3)
}
