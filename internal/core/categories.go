package core

import "strings"

const (
	CategoryFood   = "Food"
	CategoryTravel = "Travel"
	CategoryRent   = "Rent"
	CategoryOther  = "Other"
)

// FixedCategories are offered to every user before any custom label.
var FixedCategories = []string{CategoryFood, CategoryTravel, CategoryRent}

// CategoryNames builds the selectable list: fixed categories, the user's custom
// labels in stored order, then Other if it is not already present. Duplicates keep
// their first position.
func CategoryNames(custom []Category) []string {
	names := make([]string, 0, len(FixedCategories)+len(custom)+1)
	names = append(names, FixedCategories...)
	for _, c := range custom {
		names = append(names, c.Name)
	}
	if !ContainsCategory(names, CategoryOther) {
		names = append(names, CategoryOther)
	}
	return dedupe(names)
}

// ContainsCategory reports an exact-match name in list.
func ContainsCategory(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// IsFixedCategory reports whether name is one of the built-in categories or Other.
func IsFixedCategory(name string) bool {
	return name == CategoryOther || ContainsCategory(FixedCategories, name)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
