package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseSetDigestOrderIndependent(t *testing.T) {
	a := Purchase{Token: "T1", ProductID: "one_apple", OrderID: "GPA.1", PurchaseTime: 1000}
	b := Purchase{Token: "T2", ProductID: "app_premium_feature", PurchaseTime: 2000}

	d1, err := PurchaseSetDigest([]Purchase{a, b})
	require.NoError(t, err)
	d2, err := PurchaseSetDigest([]Purchase{b, a})
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestPurchaseSetDigestChangesWithContent(t *testing.T) {
	a := Purchase{Token: "T1", ProductID: "one_apple", PurchaseTime: 1000}
	changed := a
	changed.PurchaseTime = 1001

	d1, err := PurchaseSetDigest([]Purchase{a})
	require.NoError(t, err)
	d2, err := PurchaseSetDigest([]Purchase{changed})
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestPurchaseSetDigestEmpty(t *testing.T) {
	d, err := PurchaseSetDigest(nil)
	require.NoError(t, err)
	assert.Len(t, d, 64)
}

func TestPurchaseCanonicalMapOmitsEmptyOrder(t *testing.T) {
	m := Purchase{Token: "T1", ProductID: "p"}.CanonicalMap()
	_, ok := m["order_id"]
	assert.False(t, ok)

	data, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, `{"product_id":"p","purchase_time":0,"purchase_token":"T1"}`, string(data))
}

func TestDescriptorHash(t *testing.T) {
	h := DescriptorHash(`{"productId":"one_apple"}`)
	assert.Len(t, h, 16)
	assert.Equal(t, h, DescriptorHash(`{"productId":"one_apple"}`))
	assert.NotEqual(t, h, DescriptorHash(`{"productId":"two_apples"}`))
}

func TestParseProductKind(t *testing.T) {
	k, err := ParseProductKind("subscription")
	require.NoError(t, err)
	assert.Equal(t, KindSubscription, k)

	_, err = ParseProductKind("inapp")
	assert.Error(t, err)
}
