package dataset

import (
	"math/rand/v2"
	"strconv"
)

// featureRange is the uniform sampling interval of one synthetic column.
type featureRange struct {
	name     string
	min, max float64
}

var sampleRanges = []featureRange{
	{"koi_period", 0.5, 500},
	{"koi_duration", 1, 10},
	{"koi_depth", 100, 10000},
	{"koi_prad", 0.5, 20},
	{"koi_teq", 200, 2000},
	{"koi_insol", 0.1, 100},
	{"koi_steff", 3000, 7000},
	{"koi_slogg", 3.5, 5.0},
	{"koi_srad", 0.5, 2.5},
	{"koi_smass", 0.5, 2.0},
	{"koi_impact", 0, 1},
	{"koi_model_snr", 5, 100},
}

var sampleLabels = []string{"CONFIRMED", "FALSE POSITIVE", "CANDIDATE"}

// SampleLabelColumn is the label column written by Generate.
const SampleLabelColumn = "koi_disposition"

// Generate builds a synthetic Kepler-style table of n rows. Labels cycle
// through the three dispositions, so every class gets n/3 rows (±1), and
// each feature is drawn uniformly from a plausible physical range.
func Generate(n int, seed uint64) *Frame {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	headers := make([]string, 0, len(sampleRanges)+1)
	headers = append(headers, SampleLabelColumn)
	for _, fr := range sampleRanges {
		headers = append(headers, fr.name)
	}

	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, 0, len(headers))
		row = append(row, sampleLabels[i%len(sampleLabels)])
		for _, fr := range sampleRanges {
			v := fr.min + r.Float64()*(fr.max-fr.min)
			row = append(row, strconv.FormatFloat(v, 'f', 6, 64))
		}
		rows[i] = row
	}
	return &Frame{Headers: headers, Rows: rows, FileName: "nasa_exoplanets.csv"}
}
