package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleOwner  Role = "Owner"
	RoleTenant Role = "Tenant"
)

type (
	Role string

	Money struct {
		Cents int64
	}

	// Expense is a stored record. ID and CreatedAt are assigned by the store.
	Expense struct {
		ID        string    `json:"id"`
		Amount    Money     `json:"amount"`
		Category  string    `json:"category"`
		Date      time.Time `json:"date"`
		UserID    string    `json:"userId"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// NewExpense is what a caller hands to the store when recording an expense.
	NewExpense struct {
		Amount   Money
		Category string
		Date     time.Time
	}

	Category struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
	}

	UserProfile struct {
		FullName    string `json:"fullName"`
		Role        Role   `json:"role"`
		PhoneNumber string `json:"phoneNumber"`
	}

	// ProfileUpdate is a partial profile; nil fields keep their stored value.
	ProfileUpdate struct {
		FullName    *string `json:"fullName,omitempty"`
		Role        *Role   `json:"role,omitempty"`
		PhoneNumber *string `json:"phoneNumber,omitempty"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidRole   = errors.New("invalid role")
	ErrEmptyProfile  = errors.New("empty profile update")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleTenant
}

func (e NewExpense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// IsEmpty reports whether the update carries no fields.
func (u ProfileUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Role == nil && u.PhoneNumber == nil
}

// Apply merges the update into p and returns the result.
func (u ProfileUpdate) Apply(p UserProfile) UserProfile {
	if u.FullName != nil {
		p.FullName = *u.FullName
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.PhoneNumber != nil {
		p.PhoneNumber = *u.PhoneNumber
	}
	return p
}

// FullUpdate returns an update that sets every field of p.
func FullUpdate(p UserProfile) ProfileUpdate {
	return ProfileUpdate{FullName: &p.FullName, Role: &p.Role, PhoneNumber: &p.PhoneNumber}
}
