package core

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Field names used in FieldErrors. They match the form input names.
const (
	FieldAmount        = "amount"
	FieldCategory      = "category"
	FieldOtherCategory = "otherCategory"
	FieldDate          = "date"
	FieldFullName      = "fullName"
	FieldRole          = "role"
	FieldPhoneNumber   = "phoneNumber"
)

const (
	minFullNameLen = 2
	minPhoneLen    = 10
)

// FieldErrors maps an input field to the message shown next to it.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Err returns fe as an error, or nil when there are no entries.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// ExpenseInput is the raw add-expense form.
type ExpenseInput struct {
	Amount        string `json:"amount"`
	Category      string `json:"category"`
	OtherCategory string `json:"otherCategory"`
	Date          string `json:"date"`
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04"}

// ParseDate accepts YYYY-MM-DD, RFC 3339 or datetime-local input.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// CustomLabel returns the trimmed custom category when Other was chosen with a name.
func (in ExpenseInput) CustomLabel() (string, bool) {
	if strings.TrimSpace(in.Category) != CategoryOther {
		return "", false
	}
	label := strings.TrimSpace(in.OtherCategory)
	return label, label != ""
}

// Parse validates the form and resolves the category to store. A custom label
// replaces Other.
func (in ExpenseInput) Parse(loc *time.Location) (NewExpense, FieldErrors) {
	errs := FieldErrors{}
	var out NewExpense

	cents, err := ParseDecimalToCents(in.Amount)
	if err != nil {
		errs[FieldAmount] = "Amount must be positive."
	}
	out.Amount = Money{Cents: cents}

	category := strings.TrimSpace(in.Category)
	switch {
	case category == "":
		errs[FieldCategory] = "Category is required."
	case category == CategoryOther:
		if label, ok := in.CustomLabel(); ok {
			category = label
		} else {
			errs[FieldOtherCategory] = "Please specify the category name."
		}
	}
	out.Category = category

	date, err := ParseDate(in.Date, loc)
	if err != nil {
		errs[FieldDate] = "Invalid date"
	}
	out.Date = date

	if len(errs) > 0 {
		return NewExpense{}, errs
	}
	return out, nil
}

// Validate checks only the fields present in the update.
func (u ProfileUpdate) Validate() FieldErrors {
	errs := FieldErrors{}
	if u.FullName != nil && utf8.RuneCountInString(strings.TrimSpace(*u.FullName)) < minFullNameLen {
		errs[FieldFullName] = "Full name must be at least 2 characters."
	}
	if u.Role != nil && !u.Role.Valid() {
		errs[FieldRole] = "Role must be Owner or Tenant."
	}
	if u.PhoneNumber != nil && utf8.RuneCountInString(strings.TrimSpace(*u.PhoneNumber)) < minPhoneLen {
		errs[FieldPhoneNumber] = "Please enter a valid phone number."
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
