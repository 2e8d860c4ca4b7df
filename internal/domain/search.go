package domain

// Filter is the attribute conjunction applied to a vector search: gender
// equality (only when set) AND tags-match-any of the product types (only when
// non-empty).
type Filter struct {
	gender       Gender
	productTypes []string
}

// NewFilter creates a search filter.
func NewFilter(gender Gender, productTypes []string) Filter {
	return Filter{gender: gender, productTypes: productTypes}
}

// Gender returns the gender clause, GenderAny when no clause applies.
func (f Filter) Gender() Gender { return f.gender }

// ProductTypes returns the match-any tag values.
func (f Filter) ProductTypes() []string { return f.productTypes }

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return !f.gender.IsSet() && len(f.productTypes) == 0
}

// Hit is one ranked result returned by the vector store, in store order.
type Hit struct {
	id       string
	title    string
	price    float64
	imageURL string
	score    float64
}

// NewHit creates a search hit.
func NewHit(id, title string, price float64, imageURL string, score float64) Hit {
	return Hit{id: id, title: title, price: price, imageURL: imageURL, score: score}
}

// ID returns the product identifier.
func (h *Hit) ID() string { return h.id }

// Title returns the product title from the stored payload.
func (h *Hit) Title() string { return h.title }

// Price returns the product price from the stored payload.
func (h *Hit) Price() float64 { return h.price }

// ImageURL returns the product image URL from the stored payload.
func (h *Hit) ImageURL() string { return h.imageURL }

// Score returns the store-native similarity score, higher is more relevant.
func (h *Hit) Score() float64 { return h.score }
