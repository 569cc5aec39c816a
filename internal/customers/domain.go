// Package customers manages the customer entity: contact data, tier, credit
// limit and discount policy, with a sale-reference guard on delete.
package customers

import "time"

// DiscountType enumerates discount policies.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (d DiscountType) valid() bool {
	switch d {
	case DiscountNone, DiscountPercentage, DiscountFixed:
		return true
	}
	return false
}

// Customer is a buyer. A nil CreditLimit means unlimited credit.
type Customer struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"owner_id"`
	Name          string       `json:"name"`
	Email         *string      `json:"email,omitempty"`
	Phone         *string      `json:"phone,omitempty"`
	Tier          string       `json:"tier"`
	CreditLimit   *float64     `json:"credit_limit,omitempty"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Key implements cache.Entity.
func (c Customer) Key() string { return c.ID }

type CreateCustomerRequest struct {
	Name          string       `json:"name" validate:"required,max=200"`
	Email         *string      `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string      `json:"phone,omitempty" validate:"omitempty,max=50"`
	Tier          string       `json:"tier" validate:"omitempty,max=50"`
	CreditLimit   *float64     `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	DiscountType  DiscountType `json:"discount_type" validate:"omitempty"`
	DiscountValue float64      `json:"discount_value" validate:"gte=0"`
}

type UpdateCustomerRequest struct {
	Name          *string       `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email         *string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string       `json:"phone,omitempty" validate:"omitempty,max=50"`
	Tier          *string       `json:"tier,omitempty" validate:"omitempty,max=50"`
	CreditLimit   *float64      `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	ClearLimit    bool          `json:"clear_limit,omitempty"`
	DiscountType  *DiscountType `json:"discount_type,omitempty"`
	DiscountValue *float64      `json:"discount_value,omitempty" validate:"omitempty,gte=0"`
}
