package exchange

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)
	ex := New(nil)
	rt.fund(t, "QUOTE", bob, 1000)
	rt.fund(t, "BASE", alice, 1000)
	rt.fund(t, "USD", bob, 1_000_000_000)

	limit(t, ex, rt, bob, Buy, 3, 2, false)
	limit(t, ex, rt, bob, Buy, 4, 2, false)
	limit(t, ex, rt, alice, Sell, 5, 9, false)
	_, err := ex.OpenLimitOrder(rt, bob, "BIG", "USD", u(10_000), u(1_000), Buy, false)
	require.NoError(t, err)

	data, err := ex.State().MarshalBinary()
	require.NoError(t, err)

	restored := NewState()
	require.NoError(t, restored.UnmarshalBinary(data))

	again, err := restored.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.Equal(t, ex.State().Hash(), restored.Hash())
	assert.Equal(t, ex.State().NextID, restored.NextID)
	assert.Equal(t, []Pair{{"BASE", "QUOTE"}, {"BIG", "USD"}}, restored.Pairs())

	ex2 := New(restored)
	assert.Equal(t, ex.GetOrderBook("BASE", "QUOTE", Buy), ex2.GetOrderBook("BASE", "QUOTE", Buy))
	assert.Equal(t, ex.GetOrderBook("BASE", "QUOTE", Sell), ex2.GetOrderBook("BASE", "QUOTE", Sell))
}

func TestEmptiedPairsAreNotEncoded(t *testing.T) {
	rt := newTestRuntime(t)
	ex := New(nil)
	rt.fund(t, "QUOTE", bob, 10)

	rec := limit(t, ex, rt, bob, Buy, 1, 1, false)
	_, err := ex.CancelOrder(rt, rec.OrderID, bob)
	require.NoError(t, err)

	fresh := NewState()
	fresh.NextID = ex.State().NextID
	a, _ := ex.State().MarshalBinary()
	b, _ := fresh.MarshalBinary()
	assert.Equal(t, b, a)
}

func TestUnmarshalRejectsCorruptState(t *testing.T) {
	rt := newTestRuntime(t)
	ex := New(nil)
	rt.fund(t, "QUOTE", bob, 10)
	limit(t, ex, rt, bob, Buy, 1, 1, false)
	data, err := ex.State().MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad version", append([]byte{9}, data[1:]...)},
		{"truncated", data[:len(data)-1]},
		{"trailing", append(append([]byte{}, data...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			assert.Error(t, s.UnmarshalBinary(tt.data))
			assert.Equal(t, uint64(1), s.NextID, "failed decode leaves state untouched")
		})
	}
}

// encodeSingle builds a state blob holding one resting bid.
func encodeSingle(base, quote string, amount, price *uint256.Int) []byte {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion)
	writeUint64(&buf, 2)
	writeUint32(&buf, 1)
	writeString(&buf, base)
	writeString(&buf, quote)
	writeUint32(&buf, 1)
	writeOrder(&buf, &Order{
		ID:          1,
		Creator:     bob,
		Side:        Buy,
		Kind:        Limit,
		TimeInForce: GoodTilFilled,
		Amount:      *amount,
		Price:       *price,
	})
	writeUint32(&buf, 0)
	return buf.Bytes()
}

func TestUnmarshalRejectsBrokenInvariants(t *testing.T) {
	s := NewState()
	require.NoError(t, s.UnmarshalBinary(encodeSingle("BASE", "QUOTE", u(5), u(3))))
	assert.Equal(t, 1, s.Len())

	var huge uint256.Int
	huge.SetAllOne()

	tests := []struct {
		name string
		data []byte
	}{
		{"base equals quote", encodeSingle("BASE", "BASE", u(5), u(3))},
		{"notional overflow", encodeSingle("BASE", "QUOTE", &huge, u(2))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			assert.Error(t, s.UnmarshalBinary(tt.data))
			assert.Zero(t, s.Len())
		})
	}
}
