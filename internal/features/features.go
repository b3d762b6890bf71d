// Package features turns a raw survey table into the numeric feature matrix
// and label vector the classifiers are trained on.
package features

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
	"github.com/YuminosukeSato/exoplanet-classifier/preprocessing"
)

// Class labels.
const (
	FalsePositive = 0
	Candidate     = 1
	Confirmed     = 2
)

// LabelAliases are the accepted label column names, in lookup order.
var LabelAliases = []string{"koi_disposition", "disposition", "exoplanet_status"}

// LabelMapping encodes upper-cased disposition values.
var LabelMapping = map[string]int{
	"FALSE POSITIVE": FalsePositive,
	"CANDIDATE":      Candidate,
	"CONFIRMED":      Confirmed,
}

// ClassNames are the display names of the encoded labels.
var ClassNames = map[int]string{
	FalsePositive: "False Positive",
	Candidate:     "Candidate",
	Confirmed:     "Confirmed",
}

// Classes lists the encoded labels in order.
var Classes = []int{FalsePositive, Candidate, Confirmed}

// CandidateFeatures are the physical quantities the classifier may use, in
// the order they appear in the feature vector.
var CandidateFeatures = []string{
	"koi_period",    // orbital period (days)
	"koi_duration",  // transit duration (hours)
	"koi_depth",     // transit depth (ppm)
	"koi_prad",      // planetary radius (Earth radii)
	"koi_teq",       // equilibrium temperature (K)
	"koi_insol",     // insolation flux (Earth flux)
	"koi_steff",     // stellar effective temperature (K)
	"koi_slogg",     // stellar surface gravity (log10 cm/s²)
	"koi_srad",      // stellar radius (solar radii)
	"koi_smass",     // stellar mass (solar masses)
	"koi_impact",    // impact parameter
	"koi_model_snr", // transit signal-to-noise ratio
}

// RequiredFeatures must be present in uploaded datasets and predict requests.
var RequiredFeatures = CandidateFeatures[:4]

// ClassNameList returns the display names in label order.
func ClassNameList() []string {
	out := make([]string, len(Classes))
	for i, c := range Classes {
		out[i] = ClassNames[c]
	}
	return out
}

// EncodeLabel maps a raw disposition to its class. Matching ignores case
// and surrounding whitespace.
func EncodeLabel(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	label, ok := LabelMapping[cases.Upper(language.Und).String(raw)]
	return label, ok
}

// ResolveLabelColumn returns the first alias present in f.
func ResolveLabelColumn(f *dataset.Frame) (string, error) {
	for _, name := range LabelAliases {
		if f.Has(name) {
			return name, nil
		}
	}
	return "", errors.NewSchemaError("preprocess", "no disposition/status column found", LabelAliases...)
}

// SelectFeatures intersects CandidateFeatures with the columns of f,
// keeping candidate order.
func SelectFeatures(f *dataset.Frame) ([]string, error) {
	var names []string
	for _, name := range CandidateFeatures {
		if f.Has(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, errors.NewSchemaError("preprocess", "no valid feature columns found", CandidateFeatures...)
	}
	return names, nil
}

// Result is the output of Preprocess.
type Result struct {
	X            *mat.Dense
	Y            []int
	FeatureNames []string
	LabelColumn  string
	Medians      []float64
	DroppedRows  int // rows whose label did not map to a class
	Imputed      int // cells filled with the column median
}

// YVec returns the labels as a column vector.
func (r *Result) YVec() *mat.VecDense {
	v := mat.NewVecDense(len(r.Y), nil)
	for i, l := range r.Y {
		v.SetVec(i, float64(l))
	}
	return v
}

// Preprocess resolves the label column, drops rows with unmapped labels,
// selects the available candidate features and fills missing cells with the
// column median of this dataset.
func Preprocess(f *dataset.Frame) (*Result, error) {
	logger := log.GetLoggerWithName("features")

	labelCol, err := ResolveLabelColumn(f)
	if err != nil {
		return nil, err
	}
	names, err := SelectFeatures(f)
	if err != nil {
		return nil, err
	}
	labelIdx := f.Index(labelCol)
	colIdx := make([]int, len(names))
	for j, name := range names {
		colIdx[j] = f.Index(name)
	}

	var (
		y       []int
		data    []float64
		dropped int
	)
	for row := 0; row < f.NRows(); row++ {
		label, ok := EncodeLabel(f.Cell(row, labelIdx))
		if !ok {
			dropped++
			continue
		}
		for j, col := range colIdx {
			cell := f.Cell(row, col)
			if dataset.IsMissing(cell) {
				data = append(data, math.NaN())
				continue
			}
			v, err := dataset.ParseNumber(cell)
			if err != nil || math.IsInf(v, 0) {
				return nil, errors.NewValidationError(names[j],
					fmt.Sprintf("non-numeric value at row %d", row), cell)
			}
			data = append(data, v)
		}
		y = append(y, label)
	}
	if len(y) == 0 {
		return nil, errors.NewSchemaError("preprocess",
			fmt.Sprintf("no rows with a recognised label in column %s", labelCol))
	}

	raw := mat.NewDense(len(y), len(names), data)
	imputed := 0
	for j, name := range names {
		observed := 0
		for i := 0; i < len(y); i++ {
			if math.IsNaN(raw.At(i, j)) {
				imputed++
			} else {
				observed++
			}
		}
		if observed == 0 {
			return nil, errors.NewSchemaError("preprocess", "feature column has no numeric values", name)
		}
	}

	imputer := preprocessing.NewSimpleImputer("median")
	filled, err := imputer.FitTransform(raw)
	if err != nil {
		return nil, errors.Wrap(err, "median imputation")
	}

	logger.Info("Dataset preprocessed",
		log.OperationKey, log.OperationPreprocess,
		log.LabelColumnKey, labelCol,
		log.SamplesKey, len(y),
		log.FeaturesKey, len(names),
		log.DroppedRowsKey, dropped,
		"imputed_cells", imputed,
	)

	return &Result{
		X:            filled.(*mat.Dense),
		Y:            y,
		FeatureNames: names,
		LabelColumn:  labelCol,
		Medians:      append([]float64(nil), imputer.Statistics...),
		DroppedRows:  dropped,
		Imputed:      imputed,
	}, nil
}
