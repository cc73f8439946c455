package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"storefront/internal/pkg/dbctx"
	"storefront/internal/pkg/testutil"
	"storefront/internal/service/checkout/domain"
)

type RepositorySuite struct {
	suite.Suite
	dbc      dbctx.Context
	sessions *GormSessionRepository
	orders   *GormOrderRepository
	now      time.Time
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	db := testutil.DB(s.T(), &CheckoutSessionModel{}, &OrderModel{}, &OrderItemModel{})
	s.dbc = dbctx.Context{Ctx: context.Background()}
	s.sessions = NewGormSessionRepository(db)
	s.orders = NewGormOrderRepository(db)
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *RepositorySuite) reservedSession(groupID string) *domain.CheckoutSession {
	cart := &domain.Cart{ID: "c-" + groupID, CustomerID: "cust-1", Items: []domain.CartItem{
		{ProductID: "p1", SKU: "A", Name: "Mug", Quantity: 2, UnitPrice: 1250},
	}}
	session, err := domain.NewCheckoutSession(cart, "", s.now)
	s.Require().NoError(err)
	session.ReservationGroupID = groupID
	session.ExpiresAt = s.now.Add(15 * time.Minute)
	s.Require().NoError(session.TransitionTo(domain.StateReserved, s.now))
	s.Require().NoError(s.sessions.Create(s.dbc, session))
	return session
}

func (s *RepositorySuite) TestSessionRoundTrip() {
	created := s.reservedSession("g1")

	loaded, err := s.sessions.Get(s.dbc, created.ID)
	s.Require().NoError(err)
	s.Equal(domain.StateReserved, loaded.State)
	s.Equal(created.Total, loaded.Total)
	s.Equal(created.Lines, loaded.Lines)
	s.True(created.ExpiresAt.Equal(loaded.ExpiresAt))
	s.Equal(time.UTC, loaded.ExpiresAt.Location())

	_, err = s.sessions.Get(s.dbc, "missing")
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *RepositorySuite) TestCompareAndSwapDetectsConcurrentChange() {
	created := s.reservedSession("g1")

	first := *created
	s.Require().NoError(first.TransitionTo(domain.StateCancelled, s.now.Add(time.Minute)))
	s.Require().NoError(s.sessions.CompareAndSwap(s.dbc, &first, domain.StateReserved))

	second := *created
	s.Require().NoError(second.TransitionTo(domain.StateFinalized, s.now.Add(time.Minute)))
	err := s.sessions.CompareAndSwap(s.dbc, &second, domain.StateReserved)
	s.True(errors.Is(err, domain.ErrInvalidState))

	loaded, err := s.sessions.Get(s.dbc, created.ID)
	s.Require().NoError(err)
	s.Equal(domain.StateCancelled, loaded.State)
	s.Require().NotNil(loaded.ResolvedAt)
}

func (s *RepositorySuite) TestListReservedByGroups() {
	a := s.reservedSession("g1")
	b := s.reservedSession("g2")
	s.reservedSession("g3")

	cancelled := *b
	s.Require().NoError(cancelled.TransitionTo(domain.StateCancelled, s.now))
	s.Require().NoError(s.sessions.CompareAndSwap(s.dbc, &cancelled, domain.StateReserved))

	found, err := s.sessions.ListReservedByGroups(s.dbc, []string{"g1", "g2"})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(a.ID, found[0].ID)

	found, err = s.sessions.ListReservedByGroups(s.dbc, nil)
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *RepositorySuite) TestListReservedByCart() {
	a := s.reservedSession("g1")
	s.reservedSession("g2")

	found, err := s.sessions.ListReservedByCart(s.dbc, "c-g1")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(a.ID, found[0].ID)

	done := *a
	s.Require().NoError(done.TransitionTo(domain.StateExpired, s.now))
	s.Require().NoError(s.sessions.CompareAndSwap(s.dbc, &done, domain.StateReserved))
	found, err = s.sessions.ListReservedByCart(s.dbc, "c-g1")
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *RepositorySuite) TestOrderCreateAndFind() {
	session := s.reservedSession("g1")
	order := domain.NewOrderFromSession(session, "pay_1", s.now)
	s.Require().NoError(s.orders.Create(s.dbc, order))

	byID, err := s.orders.FindByID(s.dbc, order.ID)
	s.Require().NoError(err)
	s.Equal(order.OrderNumber, byID.OrderNumber)
	s.Require().Len(byID.Items, 1)
	s.Equal(2, byID.Items[0].Quantity)

	bySession, err := s.orders.FindBySession(s.dbc, session.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, bySession.ID)

	dup := domain.NewOrderFromSession(session, "pay_2", s.now)
	err = s.orders.Create(s.dbc, dup)
	s.True(errors.Is(err, domain.ErrInvalidState))

	_, err = s.orders.FindByID(s.dbc, "missing")
	s.True(errors.Is(err, domain.ErrNotFound))
}
