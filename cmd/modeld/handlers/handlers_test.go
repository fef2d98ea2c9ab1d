package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	handlers "github.com/opst/pickfab/cmd/modeld/handlers"
	httptestutil "github.com/opst/pickfab/internal/testutils/http"
	"github.com/opst/pickfab/pkg/domain/model"
)

func multipartFile(t *testing.T, field, filename, content string) (io.Reader, string) {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(fw, strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return body, mw.FormDataContentType()
}

type fakePredictor struct {
	probabilities map[string]float64
	version       int
	err           error

	items []string
}

func (f *fakePredictor) Predict(ctx context.Context, item io.Reader) (map[string]float64, int, error) {
	payload, _ := io.ReadAll(item)
	f.items = append(f.items, string(payload))
	return f.probabilities, f.version, f.err
}

func TestPredictHandler(t *testing.T) {

	t.Run("it responses the prediction of the uploaded item", func(t *testing.T) {
		predictor := &fakePredictor{
			probabilities: map[string]float64{"cat": 0.7, "dog": 0.3},
			version:       3,
		}

		body, ctype := multipartFile(t, "item", "item1.png", "item bytes")
		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/predict/", body, httptestutil.ContentType(ctype),
		)

		testee := handlers.PredictHandler(predictor)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}

		resp := handlers.Prediction{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not json: %s", respRec.Body.String())
		}
		if resp.PredictedClass != "cat" {
			t.Errorf("predicted_class = %s, want cat", resp.PredictedClass)
		}
		if resp.ModelVersion != 3 {
			t.Errorf("model_version = %d, want 3", resp.ModelVersion)
		}
		if resp.Probabilities["cat"] != 0.7 || resp.Probabilities["dog"] != 0.3 {
			t.Errorf("unexpected probabilities: %+v", resp.Probabilities)
		}
		if len(predictor.items) != 1 || predictor.items[0] != "item bytes" {
			t.Errorf("unexpected item bytes reach the predictor: %+v", predictor.items)
		}
	})

	t.Run("it breaks prediction ties deterministically", func(t *testing.T) {
		predictor := &fakePredictor{
			probabilities: map[string]float64{"dog": 0.5, "cat": 0.5},
		}

		body, ctype := multipartFile(t, "item", "item1.png", "item bytes")
		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/predict/", body, httptestutil.ContentType(ctype),
		)

		testee := handlers.PredictHandler(predictor)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}

		resp := handlers.Prediction{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not json: %s", respRec.Body.String())
		}
		if resp.PredictedClass != "cat" {
			t.Errorf("predicted_class = %s, want cat (lexicographic tie-break)", resp.PredictedClass)
		}
	})

	t.Run("it responses error (BadRequest), when no item file is uploaded", func(t *testing.T) {
		predictor := &fakePredictor{}

		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/predict/", strings.NewReader(""),
			httptestutil.ContentType("multipart/form-data; boundary=xxx"),
		)

		testee := handlers.PredictHandler(predictor)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusBadRequest)
		}
		if len(predictor.items) != 0 {
			t.Error("Predict is called unexpectedly")
		}
	})
}

type fakeTrainer struct {
	err error

	datasets []string
}

func (f *fakeTrainer) Train(ctx context.Context, dataset io.Reader, onDone func(error)) error {
	payload, _ := io.ReadAll(dataset)
	f.datasets = append(f.datasets, string(payload))
	return f.err
}

func TestTrainHandler(t *testing.T) {

	t.Run("it accepts a dataset upload", func(t *testing.T) {
		trainer := &fakeTrainer{}

		body, ctype := multipartFile(t, "dataset", "dataset.tar.gz", "targz bytes")
		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/train/", body, httptestutil.ContentType(ctype),
		)

		testee := handlers.TrainHandler(trainer, nil)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusAccepted {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusAccepted)
		}
		if len(trainer.datasets) != 1 || trainer.datasets[0] != "targz bytes" {
			t.Errorf("unexpected dataset bytes reach the trainer: %+v", trainer.datasets)
		}
	})

	t.Run("it responses error (Conflict), when a training is in progress", func(t *testing.T) {
		trainer := &fakeTrainer{err: model.ErrBusy}

		body, ctype := multipartFile(t, "dataset", "dataset.tar.gz", "targz bytes")
		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/train/", body, httptestutil.ContentType(ctype),
		)

		testee := handlers.TrainHandler(trainer, nil)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusConflict {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusConflict)
		}

		resp := handlers.Detail{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not json: %s", respRec.Body.String())
		}
		if resp.Detail != "Training already in progress" {
			t.Errorf("detail = %s", resp.Detail)
		}
	})

	t.Run("it responses error (BadRequest), when no dataset file is uploaded", func(t *testing.T) {
		trainer := &fakeTrainer{}

		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/train/", strings.NewReader(""),
			httptestutil.ContentType("multipart/form-data; boundary=xxx"),
		)

		testee := handlers.TrainHandler(trainer, nil)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusBadRequest)
		}
	})
}

type fakeProber struct {
	status model.Status
	err    error
}

func (f *fakeProber) Status(ctx context.Context) (model.Status, error) {
	return f.status, f.err
}

func TestStatusHandler(t *testing.T) {

	t.Run("it responses the model status", func(t *testing.T) {
		prober := &fakeProber{
			status: model.Status{State: model.InTraining, Version: 2},
		}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/status/")

		testee := handlers.StatusHandler(prober)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}

		resp := handlers.StatusResponse{}
		if err := json.Unmarshal(respRec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not json: %s", respRec.Body.String())
		}
		if resp.Status != "training" || resp.ModelVersion != 2 {
			t.Errorf("unexpected status: %+v", resp)
		}
	})

	t.Run("it responses error (InternalServerError), when the probe fails", func(t *testing.T) {
		prober := &fakeProber{err: errors.New("fake error")}

		e := echo.New()
		c, respRec := httptestutil.Get(e, "/status/")

		testee := handlers.StatusHandler(prober)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusInternalServerError {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusInternalServerError)
		}
	})
}

type fakeConfigurer struct {
	err error

	classes [][]string
}

func (f *fakeConfigurer) Setup(ctx context.Context, classes []string) error {
	f.classes = append(f.classes, classes)
	return f.err
}

func TestSetupHandler(t *testing.T) {

	t.Run("it records the classes", func(t *testing.T) {
		configurer := &fakeConfigurer{}

		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/setup/", strings.NewReader(`{"classes": ["cat", "dog"]}`),
			httptestutil.ContentType("application/json"),
		)

		testee := handlers.SetupHandler(configurer)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusOK {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusOK)
		}
		if len(configurer.classes) != 1 ||
			len(configurer.classes[0]) != 2 ||
			configurer.classes[0][0] != "cat" || configurer.classes[0][1] != "dog" {
			t.Errorf("unexpected classes reach the manager: %+v", configurer.classes)
		}
	})

	t.Run("it responses error (BadRequest), when classes are missing", func(t *testing.T) {
		configurer := &fakeConfigurer{}

		e := echo.New()
		c, respRec := httptestutil.Post(
			e, "/setup/", strings.NewReader(`{}`),
			httptestutil.ContentType("application/json"),
		)

		testee := handlers.SetupHandler(configurer)
		if err := testee(c); err != nil {
			t.Fatalf("response is not illegal. error = %v", err)
		}
		if respRec.Result().StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", respRec.Result().StatusCode, http.StatusBadRequest)
		}
		if len(configurer.classes) != 0 {
			t.Error("Setup is called unexpectedly")
		}
	})
}
