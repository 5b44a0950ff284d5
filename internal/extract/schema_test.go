package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResponseValid(t *testing.T) {
	raw := []byte(`{
		"items": [
			{"row": 0, "code": "D-101", "description": "flush door 826x2040", "unit": "nr", "quantity": 14, "rate": 320.5},
			{"row": 3, "description": "ironmongery set", "quantity": 14, "rate": null}
		]
	}`)
	items, err := DecodeResponse(raw)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "D-101", items[0].Code)
	assert.Equal(t, 14.0, items[0].Quantity)
	require.NotNil(t, items[0].Rate)
	assert.Equal(t, 320.5, *items[0].Rate)
	assert.Nil(t, items[1].Rate)
	assert.Equal(t, 3, items[1].Row)
}

func TestDecodeResponseEmptyItems(t *testing.T) {
	items, err := DecodeResponse([]byte(`{"items": []}`))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDecodeResponseRejected(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"items": [`,
		"missing items":       `{"results": []}`,
		"missing description": `{"items": [{"row": 1, "quantity": 2}]}`,
		"blank description":   `{"items": [{"description": ""}]}`,
		"negative row":        `{"items": [{"row": -1, "description": "x"}]}`,
		"items not array":     `{"items": {"description": "x"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeResponse([]byte(raw))
			assert.Error(t, err)
		})
	}
}
