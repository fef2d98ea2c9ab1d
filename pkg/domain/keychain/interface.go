package keychain

import (
	"github.com/opst/pickfab/pkg/domain/keychain/db"
)

type Interface interface {
	Database() db.KeychainInterface
}

type impl struct {
	db db.KeychainInterface
}

func New(db db.KeychainInterface) Interface {
	return &impl{db: db}
}

func (i *impl) Database() db.KeychainInterface {
	return i.db
}
