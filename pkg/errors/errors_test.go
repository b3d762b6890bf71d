package errors

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "exoplanet: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			wantMsg: "exoplanet: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 12, 4, 1)

	want := "exoplanet: Predict: dimension mismatch on axis 1 (features). Expected 12, got 4"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestServiceTaxonomy(t *testing.T) {
	cause := fmt.Errorf("singular kernel")

	tests := []struct {
		name    string
		err     error
		wantMsg string
		check   func(error) bool
	}{
		{
			name:    "schema error with columns",
			err:     NewSchemaError("Preprocess", "no label column found", "koi_disposition", "disposition"),
			wantMsg: "exoplanet: Preprocess: no label column found: [koi_disposition, disposition]",
			check:   func(err error) bool { var e *SchemaError; return As(err, &e) },
		},
		{
			name:    "schema error without columns",
			err:     NewSchemaError("Preprocess", "no feature columns found"),
			wantMsg: "exoplanet: Preprocess: no feature columns found",
			check:   func(err error) bool { var e *SchemaError; return As(err, &e) },
		},
		{
			name:    "not found with path",
			err:     NewNotFoundError("dataset", "data/nasa_exoplanets.csv"),
			wantMsg: "exoplanet: dataset not found at data/nasa_exoplanets.csv",
			check:   func(err error) bool { var e *NotFoundError; return As(err, &e) },
		},
		{
			name:    "not found without path",
			err:     NewNotFoundError("trained model", ""),
			wantMsg: "exoplanet: trained model not found",
			check:   func(err error) bool { var e *NotFoundError; return As(err, &e) },
		},
		{
			name:    "training error keeps cause",
			err:     NewTrainingError("svm", "classifier fit", cause),
			wantMsg: "exoplanet: training svm failed during classifier fit: singular kernel",
			check:   func(err error) bool { return Is(err, cause) },
		},
		{
			name:    "validation error without value",
			err:     NewValidationError("koi_period", "field required", nil),
			wantMsg: "exoplanet: validation failed for 'koi_period': field required",
			check:   func(err error) bool { var e *ValidationError; return As(err, &e) },
		},
		{
			name:    "validation error with value",
			err:     NewValidationError("test_size", "must be in (0, 1)", 1.5),
			wantMsg: "exoplanet: validation failed for 'test_size': must be in (0, 1) (got: 1.5)",
			check:   func(err error) bool { var e *ValidationError; return As(err, &e) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
			if !tt.check(tt.err) {
				t.Errorf("type check failed for %T", tt.err)
			}
		})
	}
}

func TestWrappedTaxonomyStillMatches(t *testing.T) {
	err := Wrap(NewNotFoundError("dataset", ""), "train")

	var nf *NotFoundError
	if !As(err, &nf) {
		t.Fatal("wrapped NotFoundError should be found with As")
	}
	if nf.Resource != "dataset" {
		t.Errorf("Resource = %q", nf.Resource)
	}
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logger.Error().Object("err", &SchemaError{Op: "Preprocess", Reason: "missing", Columns: []string{"a"}}).Msg("x")
	out := buf.String()
	for _, want := range []string{`"type":"SchemaError"`, `"operation":"Preprocess"`, `"columns":["a"]`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}

func TestWarn(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(error) {})

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))
	Warn(NewConvergenceWarning("SMO", 100, ""))

	if len(got) != 2 {
		t.Fatalf("got %d warnings, want 2", len(got))
	}
	if !strings.Contains(got[0].Error(), "'precision' is ill-defined") {
		t.Errorf("unexpected warning: %v", got[0])
	}
	if !strings.Contains(got[1].Error(), "SMO failed to converge after 100 iterations") {
		t.Errorf("unexpected warning: %v", got[1])
	}
}

func TestNumericalHelpers(t *testing.T) {
	if SafeDivide(1, 0) != 0 {
		t.Error("SafeDivide by zero should return 0")
	}
	if SafeDivide(6, 3) != 2 {
		t.Error("SafeDivide(6, 3) should be 2")
	}
	if ClipValue(5, 0, 1) != 1 || ClipValue(-5, 0, 1) != 0 {
		t.Error("ClipValue out of range")
	}

	p := Softmax([]float64{1000, 1000, 1000}, nil)
	for _, v := range p {
		if math.Abs(v-1.0/3.0) > 1e-12 {
			t.Errorf("Softmax = %v, want uniform", p)
		}
	}

	m := matrixFunc(func(i, j int) float64 {
		if i == 1 && j == 0 {
			return math.NaN()
		}
		return 1
	})
	err := CheckMatrix("scale", m, 2, 2, 0)
	var ni *NumericalInstabilityError
	if !As(err, &ni) {
		t.Fatalf("CheckMatrix() = %v, want NumericalInstabilityError", err)
	}
}

type matrixFunc func(i, j int) float64

func (f matrixFunc) At(i, j int) float64 { return f(i, j) }
