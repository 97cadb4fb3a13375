package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/billsync/internal/ir"
)

func TestParsePurchaseState(t *testing.T) {
	s, err := ParsePurchaseState("PURCHASED")
	require.NoError(t, err)
	assert.Equal(t, StatePurchased, s)

	s, err = ParsePurchaseState("pending")
	require.NoError(t, err)
	assert.Equal(t, StatePending, s)

	s, err = ParsePurchaseState("")
	require.NoError(t, err)
	assert.Equal(t, StateUnspecified, s)

	_, err = ParsePurchaseState("REFUNDED")
	assert.Error(t, err)
}

func TestRecordConversions(t *testing.T) {
	p := Purchase{Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 10, State: StatePurchased}
	assert.Equal(t, ir.Purchase{Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 10}, p.Record())

	h := HistoryRecord{Token: "T2", ProductID: "app_premium_feature", PurchaseTime: 20}
	rec := h.Record()
	assert.Empty(t, rec.OrderID)
	assert.Equal(t, "T2", rec.Token)

	d := ProductDetails{ID: "one_apple", Kind: ir.KindOneTime, Price: "$0.99", Descriptor: "{}"}
	assert.Equal(t, ir.Product{ID: "one_apple", Kind: ir.KindOneTime, Price: "$0.99", Descriptor: "{}"}, d.Product())
}
