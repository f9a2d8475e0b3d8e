package domain

import "errors"

var ErrNegativeStock = errors.New("stock would go negative")

// InventoryRecord is the durable stock row for a single item.
type InventoryRecord struct {
	ItemID   string
	Quantity int64
	Version  int64 // optimistic locking
}

// Decrement returns a copy with quantity reduced by qty. The version is left
// untouched; the store bumps it when the conditional write lands.
func (r InventoryRecord) Decrement(qty int) (InventoryRecord, error) {
	if int64(qty) > r.Quantity {
		return r, ErrNegativeStock
	}
	r.Quantity -= int64(qty)
	return r, nil
}

// WriteStatus is the result of a version-guarded inventory write.
type WriteStatus int

const (
	WriteOK WriteStatus = iota
	WriteVersionConflict
	WriteFatal
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "ok"
	case WriteVersionConflict:
		return "version_conflict"
	default:
		return "fatal"
	}
}
