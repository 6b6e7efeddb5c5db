package checkout

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/safar/cart-billing/internal/config"
	"github.com/safar/cart-billing/internal/events"
	"github.com/safar/cart-billing/internal/logging"
	"github.com/safar/cart-billing/internal/metrics"
	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var seq atomic.Int64

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) typesFor(billID int64) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.BillID == billID {
			out = append(out, e.Type)
		}
	}
	return out
}

// memoryIdempotency mirrors the Redis store: a key is pending until
// completed, and a pending key cannot be reserved again.
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: map[string]int64{}}
}

func (m *memoryIdempotency) Reserve(_ context.Context, scope, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if billID, ok := m.keys[scope+":"+key]; ok {
		return billID, false, nil
	}
	m.keys[scope+":"+key] = 0
	return 0, true, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, scope, key string, billID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[scope+":"+key] = billID
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, scope+":"+key)
	return nil
}

// mapCache keeps bills in memory with the same fill and refresh rules as the
// Redis cache: a miss never replaces an entry, a refresh always does.
type mapCache struct {
	mu        sync.Mutex
	bills     map[int64]models.Bill
	refreshed []int64
}

func newMapCache() *mapCache {
	return &mapCache{bills: map[int64]models.Bill{}}
}

func (c *mapCache) Get(ctx context.Context, id int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error) {
	c.mu.Lock()
	cached, ok := c.bills[id]
	c.mu.Unlock()
	if ok {
		return &cached, nil
	}

	bill, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if _, ok := c.bills[id]; !ok {
		c.bills[id] = *bill
	}
	c.mu.Unlock()
	return bill, nil
}

func (c *mapCache) Refresh(ctx context.Context, id int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error) {
	bill, err := load(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshed = append(c.refreshed, id)
	if err != nil {
		delete(c.bills, id)
		return nil, err
	}
	c.bills[id] = *bill
	return bill, nil
}

func (c *mapCache) put(bill models.Bill) {
	c.mu.Lock()
	c.bills[bill.ID] = bill
	c.mu.Unlock()
}

type fixture struct {
	svc       *Service
	db        *sql.DB
	publisher *recordingPublisher
	metrics   *metrics.CheckoutMetrics
}

func newFixture(t *testing.T, db *sql.DB, opts ...Option) *fixture {
	t.Helper()
	publisher := &recordingPublisher{}
	m := metrics.NewCheckoutMetrics(prometheus.NewRegistry())
	opts = append([]Option{WithPublisher(publisher)}, opts...)
	return &fixture{
		svc:       NewService(db, m, logging.NewWithWriter(config.LogConfig{}, io.Discard), opts...),
		db:        db,
		publisher: publisher,
		metrics:   m,
	}
}

func mustUser(t *testing.T, db *sql.DB, role string) (*models.User, Actor) {
	t.Helper()
	n := seq.Add(1)
	user, err := store.CreateUser(context.Background(), db, fmt.Sprintf("buyer%d@example.com", n), "Buyer "+strconv.FormatInt(n, 10), role)
	require.NoError(t, err)
	return user, Actor{UserID: user.ID, Email: user.Email, Role: user.Role}
}

func mustProduct(t *testing.T, db *sql.DB, price string, stock int, owner string) *models.Product {
	t.Helper()
	n := seq.Add(1)
	product, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		Code:  fmt.Sprintf("CHK-%04d", n),
		Title: fmt.Sprintf("Item %d", n),
		Price: decimal.RequireFromString(price),
		Stock: stock,
		Owner: owner,
	})
	require.NoError(t, err)
	return product
}

type cartLine struct {
	product  *models.Product
	quantity int
}

func mustCart(t *testing.T, db *sql.DB, userID int64, lines ...cartLine) *models.Cart {
	t.Helper()
	ctx := context.Background()
	cart, err := store.CreateCart(ctx, db, userID)
	require.NoError(t, err)
	for _, line := range lines {
		_, err := store.AddProductToCart(ctx, db, cart.ID, line.product.ID)
		require.NoError(t, err)
		_, err = store.SetProductQuantity(ctx, db, cart.ID, line.product.ID, strconv.Itoa(line.quantity))
		require.NoError(t, err)
	}
	cart, err = store.GetCartByID(ctx, db, cart.ID)
	require.NoError(t, err)
	return cart
}

func stockOf(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	product, err := store.GetProduct(context.Background(), db, productID)
	require.NoError(t, err)
	return product.Stock
}
