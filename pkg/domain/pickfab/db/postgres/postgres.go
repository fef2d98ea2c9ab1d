package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"
	kpool "github.com/opst/pickfab/pkg/conn/db/postgres/pool"
	kgarbage "github.com/opst/pickfab/pkg/domain/garbage/db"
	kpggbg "github.com/opst/pickfab/pkg/domain/garbage/db/postgres"
	kkeychain "github.com/opst/pickfab/pkg/domain/keychain/db"
	kpgkeychain "github.com/opst/pickfab/pkg/domain/keychain/db/postgres"
	dbInterface "github.com/opst/pickfab/pkg/domain/pickfab/db"
	kproject "github.com/opst/pickfab/pkg/domain/project/db"
	kpgproject "github.com/opst/pickfab/pkg/domain/project/db/postgres"
	kschema "github.com/opst/pickfab/pkg/domain/schema/db"
	kpgschema "github.com/opst/pickfab/pkg/domain/schema/db/postgres"
	xe "github.com/opst/pickfab/pkg/errors"
)

type pickfabDBPostgres struct {
	pool     *pgxpool.Pool
	project  kproject.Interface
	garbage  kgarbage.Interface
	keychain kkeychain.KeychainInterface
	schema   kschema.SchemaInterface
}

type Config struct {
	SchemaRepository string
}

func DefaultConfig() Config {
	return Config{}
}

type Option func(*Config) *Config

func WithSchemaRepository(repository string) Option {
	return func(c *Config) *Config {
		c.SchemaRepository = repository
		return c
	}
}

func New(
	ctx context.Context,
	url string,
	options ...Option,
) (dbInterface.PickfabDatabase, error) {
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	c := DefaultConfig()
	for _, option := range options {
		c = *option(&c)
	}

	p := kpool.Wrap(pool)
	var schema kschema.SchemaInterface = kpgschema.Null()
	if c.SchemaRepository != "" {
		schema = kpgschema.New(p, c.SchemaRepository)
	}

	return &pickfabDBPostgres{
		pool:     pool,
		project:  kpgproject.New(p),
		garbage:  kpggbg.New(p),
		keychain: kpgkeychain.New(p),
		schema:   schema,
	}, nil
}

func (k *pickfabDBPostgres) Project() kproject.Interface {
	return k.project
}

func (k *pickfabDBPostgres) Garbage() kgarbage.Interface {
	return k.garbage
}

func (k *pickfabDBPostgres) Keychain() kkeychain.KeychainInterface {
	return k.keychain
}

func (k *pickfabDBPostgres) Schema() kschema.SchemaInterface {
	return k.schema
}

func (k *pickfabDBPostgres) Close() error {
	k.pool.Close()
	return nil
}
