package httpbackend_test

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opst/pickfab/pkg/domain/model"
	"github.com/opst/pickfab/pkg/domain/model/httpbackend"
	"github.com/opst/pickfab/pkg/domain/storage/mock"
	"github.com/opst/pickfab/pkg/utils/cmp"
)

func itemStorage(items map[string]string) *mock.Storage {
	store := mock.New()
	store.Impl.Read = func(ctx context.Context, itemId string) (io.ReadCloser, error) {
		content, ok := items[itemId]
		if !ok {
			return nil, errors.New("no such item: " + itemId)
		}
		return io.NopCloser(strings.NewReader(content)), nil
	}
	return store
}

func TestPredict(t *testing.T) {
	t.Run("it uploads the item and parses the probability vector", func(t *testing.T) {
		var gotItem string
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/predict" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fh, _, err := r.FormFile("item")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			payload, _ := io.ReadAll(fh)
			gotItem = string(payload)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"probabilities": {"cat": 0.25, "dog": 0.75},
				"predicted_class": "dog",
				"model_version": 2
			}`))
		}))
		defer svr.Close()

		store := itemStorage(map[string]string{"cats/1.png": "item bytes"})
		testee := httpbackend.New(svr.URL, store)

		got, err := testee.Predict(context.Background(), "cats/1.png")
		if err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}
		if got["cat"] != 0.25 || got["dog"] != 0.75 {
			t.Errorf("probabilities: actual=%+v", got)
		}
		if gotItem != "item bytes" {
			t.Errorf("uploaded item: actual=%s, expect=item bytes", gotItem)
		}
		if !cmp.SliceEq([]string(store.Calls.Read), []string{"cats/1.png"}) {
			t.Errorf("storage reads: actual=%+v", store.Calls.Read)
		}
	})

	t.Run("it responses error for non-2xx", func(t *testing.T) {
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer svr.Close()

		store := itemStorage(map[string]string{"cats/1.png": "item bytes"})
		testee := httpbackend.New(svr.URL, store)

		if _, err := testee.Predict(context.Background(), "cats/1.png"); err == nil {
			t.Fatal("error is expected, but not")
		}
	})
}

func TestTrain(t *testing.T) {

	// unpack the uploaded dataset archive into name -> content.
	readDataset := func(t *testing.T, r *http.Request) map[string]string {
		t.Helper()
		fh, _, err := r.FormFile("dataset")
		if err != nil {
			t.Fatalf("dataset file is missing: %+v", err)
		}
		gz, err := gzip.NewReader(fh)
		if err != nil {
			t.Fatalf("dataset is not gzip: %+v", err)
		}
		tr := tar.NewReader(gz)
		entries := map[string]string{}
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("dataset is not tar: %+v", err)
			}
			content, _ := io.ReadAll(tr)
			entries[hdr.Name] = string(content)
		}
		return entries
	}

	t.Run("it uploads the label-grouped dataset as tar.gz", func(t *testing.T) {
		var gotEntries map[string]string
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotEntries = readDataset(t, r)
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status": "accepted"}`))
		}))
		defer svr.Close()

		store := itemStorage(map[string]string{
			"img/1.png": "one",
			"img/2.png": "two",
			"img/3.png": "three",
		})
		testee := httpbackend.New(svr.URL, store)

		err := testee.Train(context.Background(), model.Dataset{
			"dog": {"img/2.png"},
			"cat": {"img/1.png", "img/3.png"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}

		expected := map[string]string{
			"cat/img/1.png": "one",
			"cat/img/3.png": "three",
			"dog/img/2.png": "two",
		}
		if !cmp.MapEq(gotEntries, expected) {
			t.Errorf("dataset entries: actual=%+v, expect=%+v", gotEntries, expected)
		}
	})

	t.Run("it responses ErrBusy for 409", func(t *testing.T) {
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"detail": "Training already in progress"}`))
		}))
		defer svr.Close()

		store := itemStorage(map[string]string{"img/1.png": "one"})
		testee := httpbackend.New(svr.URL, store)

		err := testee.Train(context.Background(), model.Dataset{"cat": {"img/1.png"}})
		if !errors.Is(err, model.ErrBusy) {
			t.Errorf("error: actual=%+v, expect=ErrBusy", err)
		}
	})
}

func TestStatus(t *testing.T) {

	theory := func(body string, expected model.Status) func(*testing.T) {
		return func(t *testing.T) {
			svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/status" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
			}))
			defer svr.Close()

			testee := httpbackend.New(svr.URL, mock.New())
			got, err := testee.Status(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %+v", err)
			}
			if got != expected {
				t.Errorf("status: actual=%+v, expect=%+v", got, expected)
			}
		}
	}

	t.Run(
		"it parses idle status",
		theory(`{"status": "idle", "model_version": 0}`, model.Status{State: model.Idle, Version: 0}),
	)
	t.Run(
		"it parses training status",
		theory(`{"status": "training", "model_version": 3}`, model.Status{State: model.InTraining, Version: 3}),
	)

	t.Run("it responses error for unknown state", func(t *testing.T) {
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status": "melting", "model_version": 3}`))
		}))
		defer svr.Close()

		testee := httpbackend.New(svr.URL, mock.New())
		if _, err := testee.Status(context.Background()); err == nil {
			t.Fatal("error is expected, but not")
		}
	})
}

func TestSetup(t *testing.T) {
	t.Run("it posts the label classes", func(t *testing.T) {
		var gotBody string
		svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/setup" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			payload, _ := io.ReadAll(r.Body)
			gotBody = string(payload)
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer svr.Close()

		testee := httpbackend.New(svr.URL, mock.New())
		if err := testee.Setup(context.Background(), []string{"cat", "dog"}); err != nil {
			t.Fatalf("unexpected error: %+v", err)
		}
		if !strings.Contains(gotBody, `"classes":["cat","dog"]`) {
			t.Errorf("setup body: actual=%s", gotBody)
		}
	})
}
