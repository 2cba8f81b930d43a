package barcode

import "fmt"

// Catalog maps registered barcode values to product names. Membership in
// the catalog short-circuits pattern validation and wins the
// registered-vs-unregistered arbitration.
type Catalog map[string]string

// NewCatalog copies the product map so callers can't mutate it behind the
// detector's back.
func NewCatalog(products map[string]string) Catalog {
	c := make(Catalog, len(products))
	for code, name := range products {
		c[code] = name
	}
	return c
}

// Contains reports whether the barcode is a registered product.
func (c Catalog) Contains(code string) bool {
	_, ok := c[code]
	return ok
}

// ProductName returns the registered name, or the unregistered placeholder
// the dashboard expects.
func (c Catalog) ProductName(code string) string {
	if name, ok := c[code]; ok {
		return name
	}
	return fmt.Sprintf("미등록제품(%s)", code)
}
