package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetByNumber(ctx context.Context, orderNumber string) (*Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetLine(ctx context.Context, lineID int64) (*OrderLine, error)
	SKUExists(ctx context.Context, skuID int64) (bool, error)
	CreateExchange(ctx context.Context, input CreateExchangeInput) (ExchangeOrder, error)
}

// Service is the order lookup and exchange-creation collaborator consumed by
// the returns core.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Lookup fetches an order with lines by number.
func (s *Service) Lookup(ctx context.Context, orderNumber string) (*Order, error) {
	if orderNumber == "" {
		return nil, errors.New("orders: order number required")
	}
	return s.repo.GetByNumber(ctx, orderNumber)
}

// Get fetches an order with lines by id.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

// Line fetches one order line.
func (s *Service) Line(ctx context.Context, lineID int64) (*OrderLine, error) {
	return s.repo.GetLine(ctx, lineID)
}

// CreateExchangeOrder creates the replacement order for an exchange
// resolution after verifying the target SKU exists.
func (s *Service) CreateExchangeOrder(ctx context.Context, input CreateExchangeInput) (ExchangeOrder, error) {
	if input.ExchangeSKUID == 0 {
		return ExchangeOrder{}, errors.New("orders: exchange sku required")
	}
	if input.Qty <= 0 {
		return ExchangeOrder{}, errors.New("orders: exchange qty must be positive")
	}
	ok, err := s.repo.SKUExists(ctx, input.ExchangeSKUID)
	if err != nil {
		return ExchangeOrder{}, fmt.Errorf("verify exchange sku: %w", err)
	}
	if !ok {
		return ExchangeOrder{}, fmt.Errorf("exchange sku %d: %w", input.ExchangeSKUID, shared.ErrNotFound)
	}
	return s.repo.CreateExchange(ctx, input)
}
