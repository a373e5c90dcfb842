package demand

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot/types"
)

func TestMergedSumsDuplicateVariants(t *testing.T) {
	c := Context{
		OrderType: OrderOnline,
		Items: []Item{
			{VariantID: "shirt-m", Quantity: 2},
			{VariantID: "mug", Quantity: 1},
			{VariantID: "shirt-m", Quantity: 3},
		},
	}

	merged := c.Merged()
	require.Len(t, merged, 2)
	assert.Equal(t, Item{VariantID: "shirt-m", Quantity: 5}, merged[0])
	assert.Equal(t, Item{VariantID: "mug", Quantity: 1}, merged[1])
	assert.Equal(t, int64(5), c.Requested("shirt-m"))
	assert.Equal(t, int64(0), c.Requested("hat"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		ok   bool
	}{
		{"valid", Context{OrderType: OrderOnline, Items: []Item{{VariantID: "a", Quantity: 1}}}, true},
		{"unknown type", Context{OrderType: "FAX", Items: []Item{{VariantID: "a", Quantity: 1}}}, false},
		{"no items", Context{OrderType: OrderDropship}, false},
		{"blank variant", Context{OrderType: OrderOnline, Items: []Item{{Quantity: 1}}}, false},
		{"bad coordinates", Context{
			OrderType: OrderOnline,
			Items:     []Item{{VariantID: "a", Quantity: 1}},
			Customer:  &types.Coordinates{Lat: 120},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidContext))
		})
	}
}
