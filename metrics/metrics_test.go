package metrics

import (
	"errors"
	"regexp"
	"testing"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("result artifact missing"),
		},
		{
			name: "error with punctuation",
			err:  errors.New("failed to read /tmp/results/a.json: no such file"),
		},
	}

	valid := regexp.MustCompile(`^[a-zA-Z_]*$`)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := errToLabel(tt.err)
			if !valid.MatchString(label) {
				t.Errorf("errToLabel(%v) = %q, contains invalid label characters", tt.err, label)
			}
		})
	}
}

func TestRecordersDoNotPanic(t *testing.T) {
	RecordError("unit_test_error")
	RecordErrorDetails("unit_test", errors.New("boom"))
	RecordErrorDetails("unit_test", nil)
	RecordFeature("run-1", "billing.checkout", "passed")
	RecordSuite("run-1", "pass", 10, 0, 0, 0)
}
