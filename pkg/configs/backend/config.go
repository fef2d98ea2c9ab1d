package backend

import (
	"time"
)

type BackendConfig struct {
	port    int32
	cluster *PickClusterConfig
}

func (c *BackendConfig) Port() int32 {
	return c.port
}

func (c *BackendConfig) Cluster() *PickClusterConfig {
	return c.cluster
}

// Configuration for a Pickfab cluster.
//
// to get `PickClusterConfig` instance, use `PickClusterConfigMarshall.TrySeal()` .
type PickClusterConfig struct {
	database   string
	storage    *StorageConfig
	annotation *AnnotationConfig
	mlBackend  *MLBackendConfig
	keychains  *KeychainsConfig
}

// Connection string for database.
func (k *PickClusterConfig) Database() string {
	return k.database
}

// Configuration for the item storage.
func (k *PickClusterConfig) Storage() *StorageConfig {
	return k.storage
}

// Configuration for the annotation tool.
func (k *PickClusterConfig) Annotation() *AnnotationConfig {
	return k.annotation
}

// Configuration for the ML backend.
func (k *PickClusterConfig) MLBackend() *MLBackendConfig {
	return k.mlBackend
}

func (k *PickClusterConfig) Keychains() *KeychainsConfig {
	return k.keychains
}

// Setting for the item storage.
type StorageConfig struct {
	root string
}

// Root directory holding items. Item ids are paths relative to here.
func (s *StorageConfig) Root() string {
	return s.root
}

type AnnotationConfig struct {
	endpoint string
	token    string
	webhook  *WebhookConfig
}

// Base URL of the annotation tool API.
func (a *AnnotationConfig) Endpoint() string {
	return a.endpoint
}

// API token of the annotation tool account.
func (a *AnnotationConfig) Token() string {
	return a.token
}

// Webhook registration. Can be nil; batch progress is found by the
// collecting loop's polling only, then.
func (a *AnnotationConfig) Webhook() *WebhookConfig {
	return a.webhook
}

type WebhookConfig struct {
	url string
}

// URL the annotation tool delivers batch signals to.
func (w *WebhookConfig) URL() string {
	return w.url
}

type MLBackendConfig struct {
	endpoint       string
	trainingBudget time.Duration
}

// Base URL of the ML backend API.
func (m *MLBackendConfig) Endpoint() string {
	return m.endpoint
}

// How long a training round may run before the project is held as stalled.
// default = 1h
func (m *MLBackendConfig) TrainingBudget() time.Duration {
	return m.trainingBudget
}

type KeychainsConfig struct {
	signKeyForWebhookToken *HS256KeychainsConfig
}

func (kc *KeychainsConfig) SignKeyForWebhookToken() *HS256KeychainsConfig {
	return kc.signKeyForWebhookToken
}

type HS256KeychainsConfig struct {
	name string
}

func (kc *HS256KeychainsConfig) Name() string {
	return kc.name
}
