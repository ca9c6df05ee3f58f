package api

// Pair identifies one catalogue item: a product sold by a given manufacturer.
type Pair struct {
	ProductID      string `json:"product_id"`
	ManufacturerID string `json:"manufacturer_id"`
}

// Key is the stable "<product>:<manufacturer>" form used for logs and message keys.
func (p Pair) Key() string {
	return p.ProductID + ":" + p.ManufacturerID
}

func (p Pair) String() string {
	return p.Key()
}

// Valid reports whether both identifiers are set.
func (p Pair) Valid() bool {
	return p.ProductID != "" && p.ManufacturerID != ""
}
