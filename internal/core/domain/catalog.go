package domain

type CatalogItem struct {
	ItemID    string
	StoreID   string
	Name      string
	UnitPrice int64
	Hidden    bool
}
