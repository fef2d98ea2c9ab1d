// Package httpbackend adapts pickfab's ML backend wire contract (served by
// cmd/modeld, or anything compatible) to the model.Trainer interface.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"github.com/opst/pickfab/pkg/archive"
	"github.com/opst/pickfab/pkg/domain/model"
	"github.com/opst/pickfab/pkg/domain/storage"
)

type trainer struct {
	endpoint   string
	storage    storage.Interface
	httpclient *http.Client
}

type Option func(*trainer) *trainer

// WithHTTPClient replaces the HTTP client. The default has a 60s timeout;
// training itself runs asynchronously on the backend, so no call here
// should take longer.
func WithHTTPClient(c *http.Client) Option {
	return func(t *trainer) *trainer {
		t.httpclient = c
		return t
	}
}

// New builds a Trainer talking to endpoint.
//
// The storage is used to read item bytes for /predict uploads and /train
// dataset archives.
func New(endpoint string, storage storage.Interface, options ...Option) model.Trainer {
	t := &trainer{
		endpoint:   endpoint,
		storage:    storage,
		httpclient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range options {
		t = opt(t)
	}
	return t
}

func (t *trainer) apipath(path string) string {
	return t.endpoint + path
}

func (t *trainer) Setup(ctx context.Context, classes []string) error {
	payload, err := json.Marshal(map[string]any{"classes": classes})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, t.apipath("/setup"), bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError("setup", resp)
	}
	return nil
}

func (t *trainer) Predict(ctx context.Context, itemId string) (map[string]float64, error) {
	item, err := t.storage.Read(ctx, itemId)
	if err != nil {
		return nil, err
	}
	defer item.Close()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("item", itemId)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, item); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, t.apipath("/predict"), body,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpclient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError("predict", resp)
	}

	prediction := struct {
		Probabilities map[string]float64 `json:"probabilities"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, err
	}
	return prediction.Probabilities, nil
}

func (t *trainer) Train(ctx context.Context, dataset model.Dataset) error {
	// label-grouped layout; see package archive. Labels are walked sorted
	// to keep the archive deterministic.
	labels := make([]string, 0, len(dataset))
	for label := range dataset {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	entries := []archive.Entry{}
	closers := []io.Closer{}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, label := range labels {
		for _, itemId := range dataset[label] {
			item, err := t.storage.Read(ctx, itemId)
			if err != nil {
				return err
			}
			closers = append(closers, item)
			entries = append(entries, archive.Entry{
				Name: label + "/" + itemId,
				Body: item,
			})
		}
	}

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("dataset", "dataset.tar.gz")
	if err != nil {
		return err
	}
	if err := archive.WriteTarGz(ctx, fw, entries); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, t.apipath("/train"), body,
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpclient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return model.ErrBusy
	default:
		return responseError("train", resp)
	}
}

func (t *trainer) Status(ctx context.Context) (model.Status, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, t.apipath("/status"), nil,
	)
	if err != nil {
		return model.Status{}, err
	}

	resp, err := t.httpclient.Do(req)
	if err != nil {
		return model.Status{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Status{}, responseError("status", resp)
	}

	status := struct {
		Status       string `json:"status"`
		ModelVersion int    `json:"model_version"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return model.Status{}, err
	}

	state, err := model.AsState(status.Status)
	if err != nil {
		return model.Status{}, err
	}
	return model.Status{State: state, Version: status.ModelVersion}, nil
}

func responseError(op string, resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)
	return fmt.Errorf(
		"ml backend %s: status code = %d: %s", op, resp.StatusCode, string(payload),
	)
}
