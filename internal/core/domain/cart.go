package domain

// CartLineItem is one entry of a user's pending cart as stored by the cart service.
type CartLineItem struct {
	ItemID   string `json:"menuId"`
	StoreID  string `json:"storeId"`
	Quantity int    `json:"quantity"`
}

// ReservationLine is the per-item quantity handed to the reservation stages.
type ReservationLine struct {
	ItemID   string
	Quantity int
}

// Lines collapses a cart into one reservation line per distinct item,
// preserving first-seen order.
func Lines(items []CartLineItem) []ReservationLine {
	index := make(map[string]int, len(items))
	lines := make([]ReservationLine, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ItemID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[item.ItemID] = len(lines)
		lines = append(lines, ReservationLine{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	return lines
}

// ItemIDs returns the distinct item ids of the lines.
func ItemIDs(lines []ReservationLine) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	return ids
}
