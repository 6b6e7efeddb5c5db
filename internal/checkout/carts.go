package checkout

import (
	"context"
	"database/sql"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database"
	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/sirupsen/logrus"
)

// authorizeCart loads the cart and checks that actor may act on it.
func (s *Service) authorizeCart(ctx context.Context, op string, actor Actor, cartID int64) (*models.Cart, error) {
	cart, err := store.GetCartByID(ctx, s.db, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.NotFound(op, "could not find the cart")
	}
	if cart.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperr.Forbidden(op, "the cart belongs to another user")
	}
	return cart, nil
}

// GetCart returns the actor's own cart.
func (s *Service) GetCart(ctx context.Context, actor Actor) (*models.Cart, error) {
	cart, err := store.GetCart(ctx, s.db, actor.UserID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.NotFound("checkout.GetCart", "could not find the cart")
	}
	return cart, nil
}

func (s *Service) CreateCart(ctx context.Context, actor Actor) (*models.Cart, error) {
	cart, err := store.CreateCart(ctx, s.db, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"cart_id": cart.ID, "user_id": actor.UserID}).Info("cart created")
	return cart, nil
}

func (s *Service) GetCartByID(ctx context.Context, actor Actor, cartID int64) (*models.Cart, error) {
	return s.authorizeCart(ctx, "checkout.GetCartByID", actor, cartID)
}

// AddProduct adds one unit of the product. Users other than administrators
// cannot buy products they listed themselves.
func (s *Service) AddProduct(ctx context.Context, actor Actor, cartID, productID int64) (*models.Cart, error) {
	const op = "checkout.AddProduct"

	if _, err := s.authorizeCart(ctx, op, actor, cartID); err != nil {
		return nil, err
	}
	if err := s.checkNotOwnProduct(ctx, op, actor, productID); err != nil {
		return nil, err
	}
	return store.AddProductToCart(ctx, s.db, cartID, productID)
}

// AddProducts adds one unit of each product, all or nothing.
func (s *Service) AddProducts(ctx context.Context, actor Actor, cartID int64, productIDs []int64) (*models.Cart, error) {
	const op = "checkout.AddProducts"

	if _, err := s.authorizeCart(ctx, op, actor, cartID); err != nil {
		return nil, err
	}
	for _, productID := range productIDs {
		if err := s.checkNotOwnProduct(ctx, op, actor, productID); err != nil {
			return nil, err
		}
	}

	var cart *models.Cart
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		c, err := store.AddMultipleProductsToCart(ctx, tx, cartID, productIDs)
		if err != nil {
			return err
		}
		cart = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) checkNotOwnProduct(ctx context.Context, op string, actor Actor, productID int64) error {
	if actor.IsAdmin() {
		return nil
	}
	product, err := store.GetProduct(ctx, s.db, productID)
	if err != nil {
		return err
	}

	// Tokens may carry only the subject; ownership is keyed by email.
	email := actor.Email
	if email == "" {
		user, err := store.GetUser(ctx, s.db, actor.UserID)
		if err != nil {
			return err
		}
		email = user.Email
	}

	if store.IsProductOwner(product, email) {
		return apperr.Unauthorized(op, "you cannot add your own product to the cart")
	}
	return nil
}

func (s *Service) SetQuantity(ctx context.Context, actor Actor, cartID, productID int64, rawQuantity string) (*models.Cart, error) {
	if _, err := s.authorizeCart(ctx, "checkout.SetQuantity", actor, cartID); err != nil {
		return nil, err
	}
	return store.SetProductQuantity(ctx, s.db, cartID, productID, rawQuantity)
}

func (s *Service) RemoveProduct(ctx context.Context, actor Actor, cartID, productID int64) (*models.Cart, error) {
	if _, err := s.authorizeCart(ctx, "checkout.RemoveProduct", actor, cartID); err != nil {
		return nil, err
	}
	return store.DeleteProduct(ctx, s.db, cartID, productID)
}

func (s *Service) ClearCart(ctx context.Context, actor Actor, cartID int64) (*models.Cart, error) {
	if _, err := s.authorizeCart(ctx, "checkout.ClearCart", actor, cartID); err != nil {
		return nil, err
	}
	return store.DeleteAllProducts(ctx, s.db, cartID)
}

func (s *Service) RemoveCart(ctx context.Context, actor Actor, cartID int64) error {
	if _, err := s.authorizeCart(ctx, "checkout.RemoveCart", actor, cartID); err != nil {
		return err
	}
	if err := store.RemoveCart(ctx, s.db, cartID); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"cart_id": cartID, "user_id": actor.UserID}).Info("cart removed")
	return nil
}
