// Package catalog holds the static table of supported Tuya BLE products.
//
// Products are keyed by the vendor category (e.g. "szjqr" for fingerbots)
// and product id. Entries optionally describe the fingerbot or lock
// datapoints the bridge needs to raise bus events.
//
// The table is built once at package init and never mutated, so lookups
// are safe from any goroutine.
package catalog

import "sort"

// DefaultManufacturer is used for products that do not name one.
const DefaultManufacturer = "Tuya"

// FingerbotInfo maps fingerbot features to datapoint ids.
// ManualControl and Program are 0 when the product lacks them.
type FingerbotInfo struct {
	Switch           int `json:"switch"`
	Mode             int `json:"mode"`
	UpPosition       int `json:"up_position"`
	DownPosition     int `json:"down_position"`
	HoldTime         int `json:"hold_time"`
	ReversePositions int `json:"reverse_positions"`
	ManualControl    int `json:"manual_control,omitempty"`
	Program          int `json:"program,omitempty"`
}

// LockInfo maps lock events to datapoint ids.
type LockInfo struct {
	AlarmLock         int `json:"alarm_lock"`
	UnlockBLE         int `json:"unlock_ble"`
	UnlockFingerprint int `json:"unlock_fingerprint"`
	UnlockPassword    int `json:"unlock_password"`
}

// ProductInfo describes a product.
type ProductInfo struct {
	Name         string         `json:"name"`
	Manufacturer string         `json:"manufacturer"`
	Fingerbot    *FingerbotInfo `json:"fingerbot,omitempty"`
	Lock         *LockInfo      `json:"lock,omitempty"`
}

// CategoryInfo lists the products of a category. Info, when set, is the
// fallback for product ids not listed.
type CategoryInfo struct {
	Products map[string]ProductInfo
	Info     *ProductInfo
}

// clone returns a copy whose feature pointers are not shared with the table.
func (p ProductInfo) clone() ProductInfo {
	if p.Fingerbot != nil {
		fb := *p.Fingerbot
		p.Fingerbot = &fb
	}
	if p.Lock != nil {
		lock := *p.Lock
		p.Lock = &lock
	}
	return p
}

// Product is a flattened catalog row.
type Product struct {
	Category  string `json:"category"`
	ProductID string `json:"product_id"`
	ProductInfo
}

// LookupProduct returns the product for (category, productID). Unknown
// product ids fall back to the category's Info.
func LookupProduct(category, productID string) (ProductInfo, bool) {
	cat, ok := database[category]
	if !ok {
		return ProductInfo{}, false
	}
	if info, ok := cat.Products[productID]; ok {
		return info.clone(), true
	}
	if cat.Info != nil {
		return cat.Info.clone(), true
	}
	return ProductInfo{}, false
}

// Categories returns the known categories in sorted order.
func Categories() []string {
	out := make([]string, 0, len(database))
	for category := range database {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Products returns the products of a category sorted by product id, or nil
// for an unknown category.
func Products(category string) []Product {
	cat, ok := database[category]
	if !ok {
		return nil
	}
	out := make([]Product, 0, len(cat.Products))
	for id, info := range cat.Products {
		out = append(out, Product{Category: category, ProductID: id, ProductInfo: info.clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// All returns every catalog row ordered by category then product id.
func All() []Product {
	var out []Product
	for _, category := range Categories() {
		out = append(out, Products(category)...)
	}
	return out
}
