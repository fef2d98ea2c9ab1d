package modeld_test

import (
	"testing"
	"time"

	kmodeld "github.com/opst/pickfab/pkg/configs/modeld"
	"github.com/opst/pickfab/pkg/utils/cmp"
)

func TestConfigMarshall(t *testing.T) {
	t.Run("it loads config from yaml: ", func(t *testing.T) {
		modeldYml := []byte(`
port: 8083
model:
  root: /var/lib/pickfab/model
  trainer: ["python3", "/opt/pickfab/train.py"]
  predictor: ["python3", "/opt/pickfab/predict.py"]
  staleAfter: 90m
`)
		result, err := kmodeld.Unmarshal(modeldYml)

		if err != nil {
			t.Errorf("failed to parse config.: %v", err)
		}

		t.Run(".port", func(t *testing.T) {
			actual := result.Port()
			expected := int32(8083)
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%d, %d)", expected, actual)
			}
		})

		t.Run(".model.root", func(t *testing.T) {
			actual := result.Model().Root()
			expected := "/var/lib/pickfab/model"
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})

		t.Run(".model.trainer", func(t *testing.T) {
			actual := result.Model().Trainer()
			expected := []string{"python3", "/opt/pickfab/train.py"}
			if !cmp.SliceEq(actual, expected) {
				t.Errorf("mismatch. (expected, actual) = (%v, %v)", expected, actual)
			}
		})

		t.Run(".model.predictor", func(t *testing.T) {
			actual := result.Model().Predictor()
			expected := []string{"python3", "/opt/pickfab/predict.py"}
			if !cmp.SliceEq(actual, expected) {
				t.Errorf("mismatch. (expected, actual) = (%v, %v)", expected, actual)
			}
		})

		t.Run(".model.staleAfter", func(t *testing.T) {
			actual := result.Model().StaleAfter()
			expected := 90 * time.Minute
			if actual != expected {
				t.Errorf("mismatch. (expected, actual) = (%s, %s)", expected, actual)
			}
		})
	})

	t.Run("it defaults staleAfter to 2h and leaves commands empty when omitted", func(t *testing.T) {
		modeldYml := []byte(`
port: 8083
model:
  root: /var/lib/pickfab/model
`)
		result, err := kmodeld.Unmarshal(modeldYml)
		if err != nil {
			t.Errorf("failed to parse config.: %v", err)
		}

		if actual := result.Model().StaleAfter(); actual != 2*time.Hour {
			t.Errorf("mismatch. (expected, actual) = (%s, %s)", 2*time.Hour, actual)
		}
		if actual := result.Model().Trainer(); len(actual) != 0 {
			t.Errorf("trainer should be empty: %v", actual)
		}
		if actual := result.Model().Predictor(); len(actual) != 0 {
			t.Errorf("predictor should be empty: %v", actual)
		}
	})
}
