package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Gender is the audience bucket of a product or query.
type Gender string

// Gender values. GenderAny means no preference was expressed; it is only
// valid on an Intent, never on a Product.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderUnisex Gender = "unisex"
	GenderAny    Gender = ""
)

// IsSet reports whether a concrete gender was expressed.
func (g Gender) IsSet() bool { return g != GenderAny }

// ParseGender validates a product gender value.
func ParseGender(s string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	case GenderUnisex:
		return GenderUnisex, nil
	default:
		return GenderAny, fmt.Errorf("gender must be male, female or unisex, got %q: %w", s, ErrValidation)
	}
}

// ProductInput is the raw, unvalidated product shape supplied by the catalog owner.
type ProductInput struct {
	ProductID   string   `json:"product_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Gender      string   `json:"gender"`
	Tags        []string `json:"tags"`
	Price       float64  `json:"price"`
	ImageURL    string   `json:"image_url"`
}

// Product is the unit of indexing (immutable value object).
type Product struct {
	id          string
	title       string
	description string
	category    string
	gender      Gender
	tags        []string
	price       float64
	imageURL    string
}

// NewProduct validates and normalizes a ProductInput.
// Category and tags are lowercased and trimmed; empty tags are dropped and at
// least one tag must survive. All violations wrap ErrValidation.
func NewProduct(in ProductInput) (Product, error) {
	if strings.TrimSpace(in.ProductID) == "" {
		return Product{}, fmt.Errorf("product_id is required: %w", ErrValidation)
	}
	if strings.TrimSpace(in.Title) == "" {
		return Product{}, fmt.Errorf("title is required: %w", ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return Product{}, fmt.Errorf("description is required: %w", ErrValidation)
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		return Product{}, fmt.Errorf("category is required: %w", ErrValidation)
	}
	gender, err := ParseGender(in.Gender)
	if err != nil {
		return Product{}, err
	}
	tags := NormalizeTags(in.Tags)
	if len(tags) == 0 {
		return Product{}, fmt.Errorf("at least one non-empty tag is required: %w", ErrValidation)
	}
	if in.Price < 0 {
		return Product{}, fmt.Errorf("price must be non-negative, got %v: %w", in.Price, ErrValidation)
	}

	return Product{
		id:          strings.TrimSpace(in.ProductID),
		title:       strings.TrimSpace(in.Title),
		description: strings.TrimSpace(in.Description),
		category:    category,
		gender:      gender,
		tags:        tags,
		price:       in.Price,
		imageURL:    strings.TrimSpace(in.ImageURL),
	}, nil
}

// NormalizeTags lowercases and trims tags, dropping empty entries while
// preserving order. Idempotent: normalizing an already-normalized list yields
// the same list.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ID returns the stable external product identifier.
func (p *Product) ID() string { return p.id }

// Title returns the product title.
func (p *Product) Title() string { return p.title }

// Description returns the product description.
func (p *Product) Description() string { return p.description }

// Category returns the normalized category.
func (p *Product) Category() string { return p.category }

// Gender returns the product audience.
func (p *Product) Gender() Gender { return p.gender }

// Tags returns the normalized tags.
func (p *Product) Tags() []string { return p.tags }

// Price returns the product price.
func (p *Product) Price() float64 { return p.price }

// ImageURL returns the product image URL.
func (p *Product) ImageURL() string { return p.imageURL }

// EmbeddingText serializes the product into the single string that gets
// embedded. Field order is fixed so that identical input always yields a
// byte-identical string.
func (p *Product) EmbeddingText() string {
	var b strings.Builder
	b.WriteString(p.title)
	b.WriteString(". ")
	b.WriteString(p.description)
	b.WriteString(". Category: ")
	b.WriteString(p.category)
	b.WriteString(". Gender: ")
	b.WriteString(string(p.gender))
	b.WriteString(". Tags: ")
	b.WriteString(strings.Join(p.tags, ", "))
	b.WriteString(". Price: ")
	b.WriteString(strconv.FormatFloat(p.price, 'f', -1, 64))
	b.WriteString(".")
	return b.String()
}
