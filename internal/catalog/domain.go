// Package catalog manages the product and category entities of one tenant
// session: validated mutations against the remote store and the in-memory
// collections the UI reads from.
package catalog

import "time"

// Product is a sellable item. CategoryName is denormalized by the remote
// query; it is never joined client-side and may go stale until the next load.
type Product struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	Price        float64   `json:"price"`
	Stock        int64     `json:"stock"`
	CategoryID   *string   `json:"category_id,omitempty"`
	CategoryName *string   `json:"category_name,omitempty"`
	ImageURL     *string   `json:"image_url,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key implements cache.Entity.
func (p Product) Key() string { return p.ID }

// Category groups products.
type Category struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key implements cache.Entity.
func (c Category) Key() string { return c.ID }

type CreateProductRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	SKU        string  `json:"sku" validate:"required,max=64"`
	Price      float64 `json:"price" validate:"gte=0"`
	Stock      int64   `json:"stock" validate:"gte=0"`
	CategoryID *string `json:"category_id,omitempty" validate:"omitempty,uuid4"`
	ImageURL   *string `json:"image_url,omitempty" validate:"omitempty,url"`
}

type UpdateProductRequest struct {
	Name       *string  `json:"name,omitempty" validate:"omitempty,max=200"`
	SKU        *string  `json:"sku,omitempty" validate:"omitempty,max=64"`
	Price      *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Stock      *int64   `json:"stock,omitempty" validate:"omitempty,gte=0"`
	CategoryID *string  `json:"category_id,omitempty" validate:"omitempty,uuid4"`
	ImageURL   *string  `json:"image_url,omitempty" validate:"omitempty,url"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type UpdateCategoryRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
}

// ProductFilter narrows a product load.
type ProductFilter struct {
	CategoryID *string
}
