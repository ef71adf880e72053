package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort direction to ASC or DESC, falling
// back to def for anything else.
func ValidateSortOrder(orderDir, def string) string {
	switch strings.ToUpper(strings.TrimSpace(orderDir)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	}
	return def
}

// ResolveSortColumn maps a client sort key to a column through a whitelist.
// Unknown or empty keys resolve to defaultColumn.
func ResolveSortColumn(key string, allowed map[string]string, defaultColumn string) string {
	if col, ok := allowed[strings.ToLower(strings.TrimSpace(key))]; ok {
		return col
	}
	return defaultColumn
}

// ProductSortFields maps the orderby values partners send to product columns
var ProductSortFields = map[string]string{
	"date":     "created_at",
	"modified": "updated_at",
	"id":       "id",
	"title":    "name",
	"price":    "price",
	"slug":     "id",
}

// OrderSortFields maps orderby values to order columns
var OrderSortFields = map[string]string{
	"date":     "created_at",
	"modified": "updated_at",
	"id":       "id",
}
