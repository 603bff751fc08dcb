package cli

import (
	"bytes"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-market-onchain/model"
)

func init() {
	pterm.DisableStyling()
}

func TestTerminalView_RenderListings(t *testing.T) {
	var buf bytes.Buffer
	v := NewTerminalView(&buf)

	v.ClearListings()
	v.AppendCard(model.PropertyCard{ID: "1", Seller: "0xSeller", PriceWei: "1500000000000000000", PriceETH: "1.5"})
	v.AppendCard(model.PropertyCard{ID: "2", Seller: "0xOther", PriceWei: "1", PriceETH: "0.000000000000000001"})
	require.NoError(t, v.RenderListings())

	out := buf.String()
	assert.Contains(t, out, "Price (ETH)")
	assert.Contains(t, out, "0xSeller")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "0.000000000000000001")
}

func TestTerminalView_Placeholder(t *testing.T) {
	var buf bytes.Buffer
	v := NewTerminalView(&buf)

	v.AppendCard(model.PropertyCard{ID: "1"})
	v.ClearListings()
	v.ShowPlaceholder("No properties available.")
	require.NoError(t, v.RenderListings())

	assert.Contains(t, buf.String(), "No properties available.")
	assert.NotContains(t, buf.String(), "Seller")
}

func TestTerminalView_Notify(t *testing.T) {
	var buf bytes.Buffer
	v := NewTerminalView(&buf)

	v.Notify(model.Notification{Level: model.LevelSuccess, Message: "Property purchased"})
	v.Notify(model.Notification{Level: model.LevelWarning, Message: "Please enter a valid price"})

	assert.Contains(t, buf.String(), "Property purchased")
	assert.Contains(t, buf.String(), "Please enter a valid price")
}
