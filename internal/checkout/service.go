// Package checkout turns carts into bills and drives a bill through its
// payment lifecycle. It owns the transaction boundaries; the store package
// only runs single statements.
package checkout

import (
	"context"
	"database/sql"
	"time"

	"github.com/safar/cart-billing/internal/events"
	"github.com/safar/cart-billing/internal/metrics"
	"github.com/safar/cart-billing/internal/models"
	"github.com/sirupsen/logrus"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID int64
	Email  string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// IdempotencyStore remembers which bill a purchase request produced.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key string) (billID int64, reserved bool, err error)
	Complete(ctx context.Context, scope, key string, billID int64) error
	Release(ctx context.Context, scope, key string) error
}

// BillCache fronts bill reads. Refresh must be called after every write and
// must replace whatever a concurrent Get stored.
type BillCache interface {
	Get(ctx context.Context, id int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error)
	Refresh(ctx context.Context, id int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error)
}

type Service struct {
	db        *sql.DB
	metrics   *metrics.CheckoutMetrics
	logger    logrus.FieldLogger
	publisher events.Publisher
	idem      IdempotencyStore
	bills     BillCache

	newBillCode      TokenGenerator
	newTransactionID TokenGenerator
	now              func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(s *Service) { s.idem = store }
}

func WithBillCache(c BillCache) Option {
	return func(s *Service) { s.bills = c }
}

func WithBillCodeGenerator(gen TokenGenerator) Option {
	return func(s *Service) { s.newBillCode = gen }
}

func WithTransactionIDGenerator(gen TokenGenerator) Option {
	return func(s *Service) { s.newTransactionID = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *sql.DB, m *metrics.CheckoutMetrics, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		db:               db,
		metrics:          m,
		logger:           logger,
		publisher:        events.Noop{},
		idem:             noIdempotency{},
		bills:            noCache{},
		newBillCode:      NewBillCode,
		newTransactionID: NewTransactionID,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publish runs after the database commit; a broker outage must not undo
// a sale, so failures are only logged.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.Type,
			"bill_id":    event.BillID,
		}).Warn("failed to publish event")
	}
}

func (s *Service) countTransition(transition string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	s.metrics.PaymentTransitions.WithLabelValues(transition, result).Inc()
}

type noIdempotency struct{}

func (noIdempotency) Reserve(context.Context, string, string) (int64, bool, error) {
	return 0, true, nil
}

func (noIdempotency) Complete(context.Context, string, string, int64) error { return nil }

func (noIdempotency) Release(context.Context, string, string) error { return nil }

type noCache struct{}

func (noCache) Get(ctx context.Context, _ int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error) {
	return load(ctx)
}

func (noCache) Refresh(ctx context.Context, _ int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error) {
	return load(ctx)
}
