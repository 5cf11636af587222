package classifier

import (
	"strings"

	"havenledger-server/src/models"
)

// ResolveCategory finds the organization's category for a suggested name: an exact
// case-insensitive match first, then a case-insensitive substring match in either
// direction. Categories are scanned in the order given.
func ResolveCategory(suggested string, categories []models.ExpenseCategory) *models.ExpenseCategory {
	want := strings.ToLower(strings.TrimSpace(suggested))
	if want == "" {
		return nil
	}
	for i := range categories {
		if strings.ToLower(strings.TrimSpace(categories[i].Name)) == want {
			return &categories[i]
		}
	}
	for i := range categories {
		name := strings.ToLower(strings.TrimSpace(categories[i].Name))
		if name == "" {
			continue
		}
		if strings.Contains(name, want) || strings.Contains(want, name) {
			return &categories[i]
		}
	}
	return nil
}
