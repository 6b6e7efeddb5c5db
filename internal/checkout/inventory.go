package checkout

import (
	"context"

	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/sirupsen/logrus"
)

func (s *Service) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return store.GetProduct(ctx, s.db, productID)
}

// AdjustStock applies a signed restock or write-off and returns the product
// as it is afterwards.
func (s *Service) AdjustStock(ctx context.Context, productID int64, delta int) (*models.Product, error) {
	if err := store.AdjustStock(ctx, s.db, productID, delta); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"product_id": productID, "delta": delta}).Info("stock adjusted")
	return store.GetProduct(ctx, s.db, productID)
}
