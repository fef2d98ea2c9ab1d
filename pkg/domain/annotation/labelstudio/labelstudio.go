// Package labelstudio adapts a Label-Studio-style HTTP API to the
// annotation.Tool contract.
package labelstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/opst/pickfab/pkg/domain"
	"github.com/opst/pickfab/pkg/domain/annotation"
)

// TokenSource mints the token carried by webhook deliveries back to pickd.
//
// It is called once per project creation, when the webhook is registered.
type TokenSource func(ctx context.Context) (string, error)

type Config struct {
	// base URL of the Label Studio API, like "http://label-studio:8080".
	BaseURL string

	// API token of the Label Studio account.
	Token string

	// URL the tool should deliver annotation events to
	// (pickd's /api/webhooks/annotation/ route).
	WebhookURL string

	// mints the signed token pickd verifies on webhook deliveries.
	// Optional; when nil, webhooks are registered without a token header.
	WebhookToken TokenSource
}

type tool struct {
	config     Config
	httpclient *http.Client
	now        func() time.Time
}

type Option func(*tool) *tool

// WithHTTPClient replaces the HTTP client. The default has a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(t *tool) *tool {
		t.httpclient = c
		return t
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *tool) *tool {
		t.now = now
		return t
	}
}

func New(config Config, options ...Option) annotation.Tool {
	t := &tool{
		config:     config,
		httpclient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range options {
		t = opt(t)
	}
	return t
}

func (t *tool) apipath(path ...string) string {
	url := t.config.BaseURL
	for _, p := range path {
		url += "/" + p
	}
	return url + "/"
}

func (t *tool) send(ctx context.Context, method string, url string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+t.config.Token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return t.httpclient.Do(req)
}

func unmarshalJsonResponse(resp *http.Response, dest any, onErrorMessage string) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf(
			"%s: status code = %d: %s", onErrorMessage, resp.StatusCode, string(payload),
		)
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// labeling interface shown to annotators: one item, one choice over the
// label schema.
type labelConfigView struct {
	XMLName xml.Name          `xml:"View"`
	Image   labelConfigImage  `xml:"Image"`
	Choices labelConfigChoice `xml:"Choices"`
}

type labelConfigImage struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type labelConfigChoice struct {
	Name    string              `xml:"name,attr"`
	ToName  string              `xml:"toName,attr"`
	Choices []labelConfigOption `xml:"Choice"`
}

type labelConfigOption struct {
	Value string `xml:"value,attr"`
}

func labelConfig(labelSchema []string) (string, error) {
	choices := make([]labelConfigOption, len(labelSchema))
	for nth, l := range labelSchema {
		choices[nth] = labelConfigOption{Value: l}
	}
	conf, err := xml.Marshal(labelConfigView{
		Image: labelConfigImage{Name: "item", Value: "$item"},
		Choices: labelConfigChoice{
			Name: "label", ToName: "item", Choices: choices,
		},
	})
	if err != nil {
		return "", err
	}
	return string(conf), nil
}

func (t *tool) CreateProject(ctx context.Context, spec annotation.ProjectSpec) (domain.AnnotationProject, error) {
	conf, err := labelConfig(spec.LabelSchema)
	if err != nil {
		return domain.AnnotationProject{}, err
	}

	resp, err := t.send(ctx, http.MethodPost, t.apipath("api", "projects"), map[string]any{
		"title":        spec.Title,
		"label_config": conf,
	})
	if err != nil {
		return domain.AnnotationProject{}, err
	}
	created := struct {
		Id int `json:"id"`
	}{}
	if err := unmarshalJsonResponse(
		resp, &created, fmt.Sprintf("cannot create project %s", spec.Title),
	); err != nil {
		return domain.AnnotationProject{}, err
	}
	ref := strconv.Itoa(created.Id)

	tasks := make([]map[string]any, len(spec.Items))
	for nth, item := range spec.Items {
		tasks[nth] = map[string]any{"data": map[string]any{"item": item}}
	}
	resp, err = t.send(ctx, http.MethodPost, t.apipath("api", "projects", ref, "import"), tasks)
	if err != nil {
		return domain.AnnotationProject{}, err
	}
	if err := unmarshalJsonResponse(
		resp, nil, fmt.Sprintf("cannot import items into project %s", ref),
	); err != nil {
		return domain.AnnotationProject{}, err
	}

	if err := t.registerWebhook(ctx, ref); err != nil {
		return domain.AnnotationProject{}, err
	}

	return domain.AnnotationProject{
		Ref:   ref,
		Title: spec.Title,
		Items: spec.Items,
		Since: t.now(),
	}, nil
}

func (t *tool) registerWebhook(ctx context.Context, ref string) error {
	if t.config.WebhookURL == "" {
		return nil
	}

	headers := map[string]string{}
	if t.config.WebhookToken != nil {
		token, err := t.config.WebhookToken(ctx)
		if err != nil {
			return err
		}
		headers["X-Pickfab-Token"] = token
	}

	resp, err := t.send(ctx, http.MethodPost, t.apipath("api", "webhooks"), map[string]any{
		"project":              ref,
		"url":                  t.config.WebhookURL,
		"send_payload":         true,
		"actions":              []string{"ANNOTATION_CREATED", "ANNOTATIONS_CREATED"},
		"headers":              headers,
		"is_active":            true,
		"send_for_all_actions": false,
	})
	if err != nil {
		return err
	}
	return unmarshalJsonResponse(
		resp, nil, fmt.Sprintf("cannot register webhook for project %s", ref),
	)
}

func (t *tool) Progress(ctx context.Context, ref string) (int, error) {
	resp, err := t.send(ctx, http.MethodGet, t.apipath("api", "projects", ref), nil)
	if err != nil {
		return 0, err
	}
	detail := struct {
		TotalAnnotationsNumber int `json:"total_annotations_number"`
	}{}
	if err := unmarshalJsonResponse(
		resp, &detail, fmt.Sprintf("cannot get project %s", ref),
	); err != nil {
		return 0, err
	}
	return detail.TotalAnnotationsNumber, nil
}

// wire shape of an exported task.
//
// The chosen label of a task is result[-1].value.choices[0] of its last
// annotation; annotators editing their answer append results.
type exportedTask struct {
	Data struct {
		Item string `json:"item"`
	} `json:"data"`
	Annotations []struct {
		Result []struct {
			Value struct {
				Choices []string `json:"choices"`
			} `json:"value"`
		} `json:"result"`
	} `json:"annotations"`
}

func (et exportedTask) label() (string, bool) {
	if len(et.Annotations) == 0 {
		return "", false
	}
	last := et.Annotations[len(et.Annotations)-1]
	if len(last.Result) == 0 {
		return "", false
	}
	choices := last.Result[len(last.Result)-1].Value.Choices
	if len(choices) == 0 {
		return "", false
	}
	return choices[0], true
}

func (t *tool) Completed(ctx context.Context, ref string) ([]domain.AnnotatedItem, error) {
	resp, err := t.send(
		ctx, http.MethodGet,
		t.apipath("api", "projects", ref, "export")+"?exportType=JSON",
		nil,
	)
	if err != nil {
		return nil, err
	}
	tasks := []exportedTask{}
	if err := unmarshalJsonResponse(
		resp, &tasks, fmt.Sprintf("cannot export annotations of project %s", ref),
	); err != nil {
		return nil, err
	}

	since := t.now()
	annotated := []domain.AnnotatedItem{}
	for _, task := range tasks {
		label, ok := task.label()
		if !ok {
			continue // not annotated yet
		}
		annotated = append(annotated, domain.AnnotatedItem{
			ItemId: task.Data.Item,
			Label:  label,
			Since:  since,
		})
	}
	return annotated, nil
}

func (t *tool) Delete(ctx context.Context, ref string) error {
	resp, err := t.send(ctx, http.MethodDelete, t.apipath("api", "projects", ref), nil)
	if err != nil {
		return err
	}
	return unmarshalJsonResponse(
		resp, nil, fmt.Sprintf("cannot delete project %s", ref),
	)
}
