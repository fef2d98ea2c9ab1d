package pickfab

import (
	"context"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	bconf "github.com/opst/pickfab/pkg/configs/backend"
	"github.com/opst/pickfab/pkg/domain/annotation"
	"github.com/opst/pickfab/pkg/domain/annotation/labelstudio"
	"github.com/opst/pickfab/pkg/domain/epoch"
	"github.com/opst/pickfab/pkg/domain/garbage"
	"github.com/opst/pickfab/pkg/domain/keychain"
	"github.com/opst/pickfab/pkg/domain/keychain/key"
	"github.com/opst/pickfab/pkg/domain/keychain/keyprovider"
	"github.com/opst/pickfab/pkg/domain/model"
	"github.com/opst/pickfab/pkg/domain/model/httpbackend"
	"github.com/opst/pickfab/pkg/domain/pickfab/db/postgres"
	"github.com/opst/pickfab/pkg/domain/project"
	"github.com/opst/pickfab/pkg/domain/schema"
	"github.com/opst/pickfab/pkg/domain/storage"
	"github.com/opst/pickfab/pkg/domain/storage/localfs"
)

// Webhook tokens are verified against the signing keychain, so a token
// outliving its key stops verifying. Each dispatch registers a fresh
// webhook with a fresh token, so a key only has to cover the annotation
// period of one batch.
var WebhookKeyPolicy = key.HS256(90*24*time.Hour, 2048/8)

type Pickfab interface {
	Config() *bconf.PickClusterConfig

	Project() project.Interface
	Garbage() garbage.Interface
	Schema() schema.Interface
	Keychain() keychain.Interface

	Storage() storage.Interface
	Annotation() annotation.Tool
	Trainer() model.Trainer

	Machine() *epoch.Machine
	Controller() *epoch.Controller
}

type pickfab struct {
	config *bconf.PickClusterConfig

	project  project.Interface
	garbage  garbage.Interface
	schema   schema.Interface
	keychain keychain.Interface

	storage    storage.Interface
	annotation annotation.Tool
	trainer    model.Trainer

	machine    *epoch.Machine
	controller *epoch.Controller
}

func New(
	ctx context.Context,
	config *bconf.PickClusterConfig,
	options ...Option,
) (Pickfab, error) {
	opt := &_options{}
	for _, o := range options {
		o(opt)
	}

	pg, err := postgres.New(ctx, config.Database(), opt.pg...)
	if err != nil {
		return nil, err
	}

	store := localfs.New(config.Storage().Root())

	var webhookURL string
	var webhookToken labelstudio.TokenSource
	if w := config.Annotation().Webhook(); w != nil {
		webhookURL = w.URL()
		webhookToken = WebhookTokenSource(keyprovider.New(
			config.Keychains().SignKeyForWebhookToken().Name(),
			pg.Keychain(),
			keyprovider.WithPolicy(WebhookKeyPolicy),
		))
	}
	tool := labelstudio.New(labelstudio.Config{
		BaseURL:      config.Annotation().Endpoint(),
		Token:        config.Annotation().Token(),
		WebhookURL:   webhookURL,
		WebhookToken: webhookToken,
	})

	trainer := httpbackend.New(config.MLBackend().Endpoint(), store)

	machine := epoch.New(
		tool, trainer, store,
		epoch.WithTrainingBudget(config.MLBackend().TrainingBudget()),
	)

	return &pickfab{
		config: config,

		project:  project.New(pg.Project()),
		garbage:  garbage.New(pg.Garbage()),
		schema:   schema.New(pg.Schema()),
		keychain: keychain.New(pg.Keychain()),

		storage:    store,
		annotation: tool,
		trainer:    trainer,

		machine:    machine,
		controller: epoch.NewController(pg.Project(), machine),
	}, nil
}

type Option func(*_options)

type _options struct {
	pg []postgres.Option
}

func WithSchemaRepository(repository string) Option {
	return func(o *_options) {
		o.pg = append(o.pg, postgres.WithSchemaRepository(repository))
	}
}

// WebhookTokenSource mints the token the annotation tool carries back
// on batch-signal deliveries.
func WebhookTokenSource(kp keyprovider.KeyProvider) labelstudio.TokenSource {
	return func(ctx context.Context) (string, error) {
		now := time.Now()
		kid, k, err := kp.Provide(ctx, keychain.WithExpAfter(now.Add(24*time.Hour)))
		if err != nil {
			return "", err
		}
		return keychain.NewJWS(kid, k, &jwt.RegisteredClaims{
			Subject:   "annotation-webhook",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(k.Exp()),
		})
	}
}

func (k *pickfab) Config() *bconf.PickClusterConfig {
	return k.config
}

func (k *pickfab) Project() project.Interface {
	return k.project
}

func (k *pickfab) Garbage() garbage.Interface {
	return k.garbage
}

func (k *pickfab) Schema() schema.Interface {
	return k.schema
}

func (k *pickfab) Keychain() keychain.Interface {
	return k.keychain
}

func (k *pickfab) Storage() storage.Interface {
	return k.storage
}

func (k *pickfab) Annotation() annotation.Tool {
	return k.annotation
}

func (k *pickfab) Trainer() model.Trainer {
	return k.trainer
}

func (k *pickfab) Machine() *epoch.Machine {
	return k.machine
}

func (k *pickfab) Controller() *epoch.Controller {
	return k.controller
}
