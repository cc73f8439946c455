package port

import (
	"context"
	"time"

	"storefront/internal/pkg/dbctx"
	invdomain "storefront/internal/service/inventory/domain"
)

// Reservations 是库存预占的出站端口，由 reservation.Manager 实现。
// Tx 结尾的方法在调用方的事务中执行，以便与会话写入组合。
type Reservations interface {
	ReserveTx(dbc dbctx.Context, cartID string, lines []invdomain.Line, ttl time.Duration) (*invdomain.ReservationGroup, error)
	CommitTx(dbc dbctx.Context, groupID string) error
	ReleaseTx(dbc dbctx.Context, groupID string) (int, error)
	Group(ctx context.Context, groupID string) (*invdomain.ReservationGroup, error)
	Now() time.Time
}
