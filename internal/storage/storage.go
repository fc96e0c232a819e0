package storage

import (
	"errors"
	"sync"

	"github.com/eugenenazirov/stock-cutter/internal/cutting"
)

var (
	// ErrInvalidStock indicates the provided raw stock profile violates validation rules.
	ErrInvalidStock = errors.New("raw stock length must be positive and exceed a non-negative waste allowance")
)

var defaultStock = cutting.RawStock{Length: 6000, WasteAllowance: 0, Available: 100}

// Storage provides access to the default raw stock profile used by the planner.
type Storage interface {
	GetStock() (cutting.RawStock, error)
	SetStock(stock cutting.RawStock) error
}

// MemoryStorage keeps the stock profile in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu    sync.RWMutex
	stock cutting.RawStock
}

// NewMemoryStorage initialises storage with the default stock profile.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{stock: defaultStock}
}

// DefaultStock returns the built-in raw stock profile.
func DefaultStock() cutting.RawStock {
	return defaultStock
}

// GetStock returns the currently configured stock profile.
func (s *MemoryStorage) GetStock() (cutting.RawStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stock, nil
}

// SetStock validates and stores the provided stock profile.
func (s *MemoryStorage) SetStock(stock cutting.RawStock) error {
	if err := ValidateStock(stock); err != nil {
		return err
	}

	s.mu.Lock()
	s.stock = stock
	s.mu.Unlock()

	return nil
}

// ValidateStock checks a stock profile without storing it.
func ValidateStock(stock cutting.RawStock) error {
	if stock.Length <= 0 || stock.WasteAllowance < 0 || stock.Available < 0 {
		return ErrInvalidStock
	}
	if stock.UsableLength() <= 0 {
		return ErrInvalidStock
	}
	return nil
}
