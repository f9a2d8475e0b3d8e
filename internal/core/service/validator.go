package service

import (
	"context"
	"fmt"
	"math"

	"github.com/rl1809/stock-validator/internal/core/domain"
	"github.com/rl1809/stock-validator/internal/port"
)

// Validator checks a request against the user's cart and the catalog. It
// never touches stock.
type Validator struct {
	carts   port.CartRepository
	catalog port.CatalogRepository
}

func NewValidator(carts port.CartRepository, catalog port.CatalogRepository) *Validator {
	return &Validator{carts: carts, catalog: catalog}
}

// Validation is what a request resolves to once every check has passed.
type Validation struct {
	Lines  []domain.ReservationLine
	Priced map[string]domain.ValidatedLine
	Total  int64
}

func (v *Validator) Validate(ctx context.Context, req domain.ValidationRequest) (*Validation, error) {
	items, err := v.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w: %w", ErrTransport, err)
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	exists, err := v.catalog.StoreExists(ctx, req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("check store: %w: %w", ErrTransport, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, req.StoreID)
	}

	for _, item := range items {
		if item.StoreID != req.StoreID {
			return nil, fmt.Errorf("%w: item %s belongs to %s", ErrStoreMismatch, item.ItemID, item.StoreID)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidCart, item.ItemID)
		}
	}

	lines := domain.Lines(items)
	resolved, err := v.catalog.ResolveItems(ctx, domain.ItemIDs(lines))
	if err != nil {
		return nil, fmt.Errorf("resolve items: %w: %w", ErrTransport, err)
	}

	byID := make(map[string]domain.CatalogItem, len(resolved))
	for _, item := range resolved {
		byID[item.ItemID] = item
	}

	priced := make(map[string]domain.ValidatedLine, len(lines))
	var total int64
	for _, line := range lines {
		item, ok := byID[line.ItemID]
		if !ok || item.Hidden {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, line.ItemID)
		}
		if item.StoreID != req.StoreID {
			return nil, fmt.Errorf("%w: menu %s is listed under %s", ErrStoreMismatch, item.ItemID, item.StoreID)
		}
		priced[line.ItemID] = domain.ValidatedLine{
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  line.Quantity,
		}
		qty := int64(line.Quantity)
		if item.UnitPrice > math.MaxInt64/qty {
			return nil, fmt.Errorf("%w: line total overflows for menu %s", ErrPriceMismatch, item.ItemID)
		}
		lineTotal := item.UnitPrice * qty
		if total > math.MaxInt64-lineTotal {
			return nil, fmt.Errorf("%w: order total overflows", ErrPriceMismatch)
		}
		total += lineTotal
	}

	if total != req.TotalPrice {
		return nil, fmt.Errorf("%w: declared %d, computed %d", ErrPriceMismatch, req.TotalPrice, total)
	}

	return &Validation{Lines: lines, Priced: priced, Total: total}, nil
}
