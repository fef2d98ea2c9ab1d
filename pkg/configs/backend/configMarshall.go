package backend

import (
	"fmt"
	"time"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/backend.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type BackendConfigMarshall struct {
	Port    int32                      `yaml:"port"`
	Cluster *PickClusterConfigMarshall `yaml:"cluster"`
}

var _ Marshalled[*BackendConfig] = &BackendConfigMarshall{}

func (b *BackendConfigMarshall) trySeal(path string) *BackendConfig {
	return &BackendConfig{
		port:    b.Port,
		cluster: b.Cluster.trySeal(path + ".cluster"),
	}
}

// Configuration of a Pickfab cluster.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `PickClusterConfig`.
// You can get `PickClusterConfig` instance with `PickClusterConfigMarshall.TrySeal()`
type PickClusterConfigMarshall struct {
	Database   string                    `yaml:"database"`
	Storage    *StorageConfigMarshall    `yaml:"storage"`
	Annotation *AnnotationConfigMarshall `yaml:"annotation"`
	MLBackend  *MLBackendConfigMarshall  `yaml:"mlBackend"`
	Keychains  *KeychainsConfigMarshall  `yaml:"keychains"`
}

// verify configuration value and create "readonly" version of this.
//
// IT WILL PANIC if any misconfiguration is found.
func (km *PickClusterConfigMarshall) TrySeal() *PickClusterConfig {
	return km.trySeal("(root)")
}

func (km *PickClusterConfigMarshall) trySeal(path string) *PickClusterConfig {
	return &PickClusterConfig{
		database:   required(km.Database, path+".database"),
		storage:    nonnil(km.Storage, path+".storage").trySeal(path + ".storage"),
		annotation: nonnil(km.Annotation, path+".annotation").trySeal(path + ".annotation"),
		mlBackend:  nonnil(km.MLBackend, path+".mlBackend").trySeal(path + ".mlBackend"),
		keychains:  nonnil(km.Keychains, path+".keychains").trySeal(path + ".keychains"),
	}
}

type StorageConfigMarshall struct {
	Root string `yaml:"root"`
}

func (sm *StorageConfigMarshall) trySeal(path string) *StorageConfig {
	return &StorageConfig{
		root: required(sm.Root, path+".root"),
	}
}

type AnnotationConfigMarshall struct {
	Endpoint string                 `yaml:"endpoint"`
	Token    string                 `yaml:"token"`
	Webhook  *WebhookConfigMarshall `yaml:"webhook,omitempty"`
}

func (am *AnnotationConfigMarshall) trySeal(path string) *AnnotationConfig {
	var webhook *WebhookConfig
	if am.Webhook != nil {
		webhook = am.Webhook.trySeal(path + ".webhook")
	}
	return &AnnotationConfig{
		endpoint: required(am.Endpoint, path+".endpoint"),
		token:    required(am.Token, path+".token"),
		webhook:  webhook,
	}
}

type WebhookConfigMarshall struct {
	URL string `yaml:"url"`
}

func (wm *WebhookConfigMarshall) trySeal(path string) *WebhookConfig {
	return &WebhookConfig{
		url: required(wm.URL, path+".url"),
	}
}

type MLBackendConfigMarshall struct {
	Endpoint       string `yaml:"endpoint"`
	TrainingBudget string `yaml:"trainingBudget,omitempty"`
}

func (mm *MLBackendConfigMarshall) trySeal(path string) *MLBackendConfig {
	budget := 1 * time.Hour
	if mm.TrainingBudget != "" {
		b, err := time.ParseDuration(mm.TrainingBudget)
		if err != nil {
			panic(fmt.Errorf("%s.trainingBudget can not be parsed: %w", path, err))
		}
		if b <= 0 {
			panic(fmt.Errorf("%s.trainingBudget should be positive: %s", path, mm.TrainingBudget))
		}
		budget = b
	}

	return &MLBackendConfig{
		endpoint:       required(mm.Endpoint, path+".endpoint"),
		trainingBudget: budget,
	}
}

type KeychainsConfigMarshall struct {
	SignKeyForWebhookToken *HS256KeyChainMarshall `yaml:"signKeyForWebhookToken"`
}

func (kc *KeychainsConfigMarshall) trySeal(path string) *KeychainsConfig {
	return &KeychainsConfig{
		signKeyForWebhookToken: nonnil(kc.SignKeyForWebhookToken, path+".signKeyForWebhookToken").trySeal(path + ".signKeyForWebhookToken"),
	}
}

type HS256KeyChainMarshall struct {
	Name string `yaml:"name"`
}

func (kn *HS256KeyChainMarshall) trySeal(path string) *HS256KeychainsConfig {
	return &HS256KeychainsConfig{
		name: required(kn.Name, path+".name"),
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
