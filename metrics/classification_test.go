package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

func vec(v ...float64) *mat.VecDense {
	return mat.NewVecDense(len(v), v)
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "Perfect accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 2, 1, 0},
			want:  1.0,
		},
		{
			name:  "80% accuracy",
			yTrue: []float64{0, 1, 2, 1, 0},
			yPred: []float64{0, 1, 1, 1, 0},
			want:  0.8,
		},
		{
			name:  "Zero accuracy",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{1, 1, 1},
			want:  0.0,
		},
		{
			name:    "Empty vectors",
			wantErr: true,
		},
		{
			name:    "Length mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = vec(tt.yTrue...)
			}
			if len(tt.yPred) > 0 {
				yPred = vec(tt.yPred...)
			}

			got, err := Accuracy(yTrue, yPred)
			if (err != nil) != tt.wantErr {
				t.Errorf("Accuracy() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Accuracy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := vec(0, 0, 1, 1, 2, 2, 2)
	yPred := vec(0, 1, 1, 1, 2, 0, 2)

	cm, err := ConfusionMatrix(yTrue, yPred, []int{0, 1, 2})
	require.NoError(t, err)

	want := mat.NewDense(3, 3, []float64{
		1, 1, 0,
		0, 2, 0,
		1, 0, 2,
	})
	assert.True(t, mat.Equal(want, cm), "got %v", mat.Formatted(cm))

	// classes absent from both vectors still get a row and a column
	cm, err = ConfusionMatrix(vec(0, 0), vec(0, 0), []int{0, 1, 2})
	require.NoError(t, err)
	r, c := cm.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 2.0, mat.Sum(cm))
}

func TestWeightedScores(t *testing.T) {
	// label 0: tp=1 fp=1 fn=1 ; label 1: tp=2 fp=1 fn=0 ; label 2: tp=2 fp=0 fn=1
	yTrue := vec(0, 0, 1, 1, 2, 2, 2)
	yPred := vec(0, 1, 1, 1, 2, 0, 2)
	labels := []int{0, 1, 2}

	s, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 2.0 / 3.0, 1}, s.Precision, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 1, 2.0 / 3.0}, s.Recall, 1e-12)
	assert.Equal(t, []int{2, 2, 3}, s.Support)

	p, err := PrecisionScore(yTrue, yPred, labels, AverageWeighted)
	require.NoError(t, err)
	assert.InDelta(t, (0.5*2+2.0/3.0*2+1*3)/7, p, 1e-12)

	r, err := RecallScore(yTrue, yPred, labels, AverageWeighted)
	require.NoError(t, err)
	acc, _ := Accuracy(yTrue, yPred)
	assert.InDelta(t, acc, r, 1e-12, "weighted recall equals accuracy")

	f, err := F1Score(yTrue, yPred, labels, AverageMacro)
	require.NoError(t, err)
	assert.InDelta(t, (s.F1[0]+s.F1[1]+s.F1[2])/3, f, 1e-12)

	_, err = F1Score(yTrue, yPred, labels, "micro")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestZeroDivisionIsZero(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	// label 2 never appears and is never predicted
	s, err := PrecisionRecallFScoreSupport(vec(0, 1), vec(0, 0), []int{0, 1, 2})
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Precision[1])
	assert.Equal(t, 0.0, s.Precision[2])
	assert.Equal(t, 0.0, s.Recall[2])
	assert.Equal(t, 0.0, s.F1[2])
	assert.False(t, math.IsNaN(s.F1[1]))
	assert.NotEmpty(t, warnings)
}

func TestClassificationReportJSON(t *testing.T) {
	errors.SetWarningHandler(func(error) {})
	yTrue := vec(0, 0, 1, 1, 2, 2, 2)
	yPred := vec(0, 1, 1, 1, 2, 0, 2)

	report, err := NewClassificationReport(yTrue, yPred, []int{0, 1, 2},
		[]string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED"})
	require.NoError(t, err)
	assert.Equal(t, 7, report.WeightedAvg.Support)
	assert.Equal(t, 3, report.Classes["CONFIRMED"].Support)

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"FALSE POSITIVE", "CANDIDATE", "CONFIRMED", "accuracy", "macro avg", "weighted avg"} {
		assert.Contains(t, raw, key)
	}
	confirmed := raw["CONFIRMED"].(map[string]interface{})
	assert.Contains(t, confirmed, "f1-score")

	var back ClassificationReport
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, report.Accuracy, back.Accuracy)
	assert.Equal(t, report.Classes, back.Classes)
	assert.Len(t, back.ClassNames, 3)

	_, err = NewClassificationReport(yTrue, yPred, []int{0, 1, 2}, []string{"a"})
	assert.Error(t, err)
}
