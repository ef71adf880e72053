package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProduct_Validate(t *testing.T) {
	valid := Product{ID: "p1", Name: "Mug", Price: decimal.NewFromInt(10)}

	tests := []struct {
		name    string
		mutate  func(p *Product)
		wantErr error
	}{
		{"valid", func(p *Product) {}, nil},
		{"missing id", func(p *Product) { p.ID = " " }, ErrInvalidProductID},
		{"missing name", func(p *Product) { p.Name = "" }, ErrInvalidProductName},
		{"negative price", func(p *Product) { p.Price = decimal.NewFromInt(-1) }, ErrNegativePrice},
		{"negative stock", func(p *Product) { p.Stock = -3 }, ErrNegativeStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestProduct_PartnerSKU(t *testing.T) {
	p := Product{ID: "p1"}
	_, ok := p.PartnerSKU()
	assert.False(t, ok, "nil metadata has no partner sku")
	assert.False(t, p.IsPOD())

	p.Metadata = map[string]string{MetaPODProvider: "jetprint", MetaPODProductID: "JP-100"}
	sku, ok := p.PartnerSKU()
	assert.True(t, ok)
	assert.Equal(t, "JP-100", sku)
	assert.True(t, p.IsPOD())

	p.Metadata[MetaPODVariantID] = "JP-100-XL"
	sku, _ = p.PartnerSKU()
	assert.Equal(t, "JP-100-XL", sku)
}

func TestListFilter_Normalize(t *testing.T) {
	f := ListFilter{Page: 0, PageSize: 500}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.PageSize)
	assert.Equal(t, 0, f.Offset())

	f = ListFilter{Page: 3, PageSize: 0}
	f.Normalize()
	assert.Equal(t, 10, f.PageSize)
	assert.Equal(t, 20, f.Offset())
}
