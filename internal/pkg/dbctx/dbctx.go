package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context 把请求 context 与可选的 gorm 事务绑定在一起。
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// DB 返回事务句柄；Tx 为空时退回到 fallback，并附带 Ctx。
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	if c.Tx != nil {
		return c.Tx.WithContext(c.Ctx)
	}
	return fallback.WithContext(c.Ctx)
}
