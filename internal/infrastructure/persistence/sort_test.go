package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns default", "", "DESC"},
		{"ASC uppercase", "ASC", "ASC"},
		{"asc lowercase", "asc", "ASC"},
		{"desc lowercase", "desc", "DESC"},
		{"whitespace around asc", "  asc  ", "ASC"},
		{"invalid value returns default", "sideways", "DESC"},
		{"sql injection attempt returns default", "ASC; DROP TABLE orders;--", "DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input, "DESC"))
		})
	}
}

func TestResolveSortColumn(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"empty uses default", "", "created_at"},
		{"title maps to name", "title", "name"},
		{"case insensitive", " Price ", "price"},
		{"unknown uses default", "popularity", "created_at"},
		{"injection uses default", "name; DROP TABLE products", "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveSortColumn(tt.key, ProductSortFields, "created_at"))
		})
	}
}
