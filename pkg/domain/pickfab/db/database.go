package db

import (
	kgarbage "github.com/opst/pickfab/pkg/domain/garbage/db"
	kkeychain "github.com/opst/pickfab/pkg/domain/keychain/db"
	kproject "github.com/opst/pickfab/pkg/domain/project/db"
	kschema "github.com/opst/pickfab/pkg/domain/schema/db"
)

type PickfabDatabase interface {
	Project() kproject.Interface
	Garbage() kgarbage.Interface
	Keychain() kkeychain.KeychainInterface
	Schema() kschema.SchemaInterface
	Close() error
}
