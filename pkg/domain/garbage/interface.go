package garbage

import (
	"github.com/opst/pickfab/pkg/domain/garbage/db"
)

type Interface interface {
	Database() db.Interface
}

type Garbage struct {
	db db.Interface
}

func New(dbg db.Interface) Interface {
	return &Garbage{db: dbg}
}

func (g *Garbage) Database() db.Interface {
	return g.db
}
