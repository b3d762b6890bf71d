// Package metrics provides classification evaluation metrics.
package metrics

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// Averaging strategies accepted by PrecisionScore, RecallScore and F1Score.
const (
	AverageWeighted = "weighted"
	AverageMacro    = "macro"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// Accuracy returns the fraction of exact label matches.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if int(yTrue.AtVec(i)) == int(yPred.AtVec(i)) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ConfusionMatrix returns a len(labels)×len(labels) matrix whose entry (i, j)
// counts samples with true label labels[i] predicted as labels[j]. Samples
// whose true or predicted label is not in labels are ignored.
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []int) (*mat.Dense, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}

	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		ti, ok := index[int(yTrue.AtVec(i))]
		if !ok {
			continue
		}
		pi, ok := index[int(yPred.AtVec(i))]
		if !ok {
			continue
		}
		cm.Set(ti, pi, cm.At(ti, pi)+1)
	}
	return cm, nil
}

// ClassScores holds the per-label results of PrecisionRecallFScoreSupport.
type ClassScores struct {
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
}

// PrecisionRecallFScoreSupport computes per-label precision, recall, F1 and
// support. A zero denominator yields 0 and emits an UndefinedMetricWarning.
func PrecisionRecallFScoreSupport(yTrue, yPred *mat.VecDense, labels []int) (*ClassScores, error) {
	cm, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}
	k := len(labels)
	s := &ClassScores{
		Precision: make([]float64, k),
		Recall:    make([]float64, k),
		F1:        make([]float64, k),
		Support:   make([]int, k),
	}

	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		var predicted, actual float64
		for j := 0; j < k; j++ {
			predicted += cm.At(j, c)
			actual += cm.At(c, j)
		}
		s.Support[c] = int(actual)

		if predicted == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", fmt.Sprintf("no predicted samples for label %d", labels[c]), 0))
		}
		if actual == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", fmt.Sprintf("no true samples for label %d", labels[c]), 0))
		}
		s.Precision[c] = errors.SafeDivide(tp, predicted)
		s.Recall[c] = errors.SafeDivide(tp, actual)
		s.F1[c] = errors.SafeDivide(2*s.Precision[c]*s.Recall[c], s.Precision[c]+s.Recall[c])
	}
	return s, nil
}

func average(values []float64, support []int, avg string) (float64, error) {
	switch avg {
	case AverageMacro:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return errors.SafeDivide(sum, float64(len(values))), nil
	case AverageWeighted:
		var sum, total float64
		for i, v := range values {
			sum += v * float64(support[i])
			total += float64(support[i])
		}
		return errors.SafeDivide(sum, total), nil
	default:
		return 0, errors.NewValidationError("average", "must be weighted or macro", avg)
	}
}

// PrecisionScore returns the averaged precision over labels.
func PrecisionScore(yTrue, yPred *mat.VecDense, labels []int, avg string) (float64, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return 0, err
	}
	return average(s.Precision, s.Support, avg)
}

// RecallScore returns the averaged recall over labels.
func RecallScore(yTrue, yPred *mat.VecDense, labels []int, avg string) (float64, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return 0, err
	}
	return average(s.Recall, s.Support, avg)
}

// F1Score returns the averaged F1 over labels.
func F1Score(yTrue, yPred *mat.VecDense, labels []int, avg string) (float64, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return 0, err
	}
	return average(s.F1, s.Support, avg)
}

// ReportRow is one line of a classification report.
type ReportRow struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport is the per-class and averaged summary of a prediction run.
// It marshals to a flat JSON object keyed by class name plus "accuracy",
// "macro avg" and "weighted avg".
type ClassificationReport struct {
	ClassNames  []string
	Classes     map[string]ReportRow
	Accuracy    float64
	MacroAvg    ReportRow
	WeightedAvg ReportRow
}

// NewClassificationReport builds a report over labels; names[i] is the display name of labels[i].
func NewClassificationReport(yTrue, yPred *mat.VecDense, labels []int, names []string) (*ClassificationReport, error) {
	if len(names) != len(labels) {
		return nil, errors.NewDimensionError("ClassificationReport", len(labels), len(names), 1)
	}
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	r := &ClassificationReport{
		ClassNames: append([]string(nil), names...),
		Classes:    make(map[string]ReportRow, len(labels)),
		Accuracy:   acc,
	}
	total := 0
	for i, name := range names {
		r.Classes[name] = ReportRow{Precision: s.Precision[i], Recall: s.Recall[i], F1Score: s.F1[i], Support: s.Support[i]}
		total += s.Support[i]
	}

	for _, avg := range []string{AverageMacro, AverageWeighted} {
		p, _ := average(s.Precision, s.Support, avg)
		rc, _ := average(s.Recall, s.Support, avg)
		f, _ := average(s.F1, s.Support, avg)
		row := ReportRow{Precision: p, Recall: rc, F1Score: f, Support: total}
		if avg == AverageMacro {
			r.MacroAvg = row
		} else {
			r.WeightedAvg = row
		}
	}
	return r, nil
}

// MarshalJSON implements json.Marshaler.
func (r *ClassificationReport) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Classes)+3)
	for name, row := range r.Classes {
		out[name] = row
	}
	out["accuracy"] = r.Accuracy
	out["macro avg"] = r.MacroAvg
	out["weighted avg"] = r.WeightedAvg
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ClassificationReport) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Classes = make(map[string]ReportRow)
	r.ClassNames = nil
	for key, value := range raw {
		var err error
		switch key {
		case "accuracy":
			err = json.Unmarshal(value, &r.Accuracy)
		case "macro avg":
			err = json.Unmarshal(value, &r.MacroAvg)
		case "weighted avg":
			err = json.Unmarshal(value, &r.WeightedAvg)
		default:
			var row ReportRow
			err = json.Unmarshal(value, &row)
			r.Classes[key] = row
			r.ClassNames = append(r.ClassNames, key)
		}
		if err != nil {
			return errors.Wrapf(err, "classification report field %q", key)
		}
	}
	return nil
}
