package model

// Item is a stocked supply. Stock and Threshold are always counted in
// base units ("each"), even when the item is tracked by the box.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Unit        string `json:"unit"`
	UnitsPerBox int    `json:"unitsPerBox,omitempty"`
	Option      string `json:"option,omitempty"`
	SKU         string `json:"sku"`
	Threshold   int    `json:"threshold"`
	Stock       int    `json:"stock"`
}

// Units.
const (
	UnitEach = "each"
	UnitBox  = "box"
)

// IsLowStock reports whether stock has fallen to or below the reorder point.
func (i Item) IsLowStock() bool {
	return i.Stock <= i.Threshold
}

// Boxes splits stock into full boxes and a remainder smaller than UnitsPerBox.
// Items without a box size report zero boxes and the whole stock as remainder.
func (i Item) Boxes() (boxes, remainder int) {
	if i.UnitsPerBox <= 0 {
		return 0, i.Stock
	}
	return i.Stock / i.UnitsPerBox, i.Stock % i.UnitsPerBox
}

// BaseQuantity converts a quantity expressed in unit into base units.
func (i Item) BaseQuantity(quantity int, unit string) int {
	if unit == UnitBox && i.UnitsPerBox > 0 {
		return quantity * i.UnitsPerBox
	}
	return quantity
}
