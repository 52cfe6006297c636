package mempool

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected Class
		wantErr  bool
	}{
		{name: "order", tx: `{"type":"order","order":{"base":"NEX"},"signature":"0x1234"}`, expected: ClassOrder},
		{name: "cancel", tx: `{"type":"cancel","cancel":{"order_id":7},"signature":"0xabcd"}`, expected: ClassCancel},
		{name: "transfer", tx: `{"type":"transfer","transfer":{},"signature":"0x01"}`, expected: ClassNonOrder},
		{name: "mint", tx: `{"type":"mint","mint":{},"signature":"0x01"}`, expected: ClassNonOrder},
		{name: "burn", tx: `{"type":"burn","burn":{},"signature":"0x01"}`, expected: ClassNonOrder},
		{name: "unknown type", tx: `{"type":"swap"}`, wantErr: true},
		{name: "invalid JSON", tx: `{"invalid": "json"`, wantErr: true},
		{name: "legacy string", tx: "O:GTC:BTC-USDT", wantErr: true},
		{name: "empty", tx: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify([]byte(tt.tx))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnclassified)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMempoolOrdering(t *testing.T) {
	m := NewMempool(0)

	order1 := `{"type":"order","order":{"base":"NEX","side":1},"signature":"0x1111"}`
	order2 := `{"type":"order","order":{"base":"NEX","side":2},"signature":"0x2222"}`
	cancel1 := `{"type":"cancel","cancel":{"order_id":1},"signature":"0x4444"}`
	transfer1 := `{"type":"transfer","transfer":{"symbol":"NEX"},"signature":"0x5555"}`
	cancel2 := `{"type":"cancel","cancel":{"order_id":2},"signature":"0x6666"}`

	for _, tx := range []string{order1, cancel1, order2, transfer1, cancel2} {
		_, err := m.PushRaw([]byte(tx))
		require.NoError(t, err)
	}
	assert.Equal(t, map[Class]int{ClassNonOrder: 1, ClassCancel: 2, ClassOrder: 2}, m.Sizes())

	txs := m.SelectForProposal(10_000)
	got := make([]string, len(txs))
	for i, tx := range txs {
		got[i] = string(tx)
	}
	assert.Equal(t, []string{transfer1, cancel1, cancel2, order1, order2}, got)
	assert.Zero(t, m.Len())
}

func TestMempoolMaxBytes(t *testing.T) {
	m := NewMempool(0)
	var size int
	for i := 0; i < 3; i++ {
		tx := fmt.Sprintf(`{"type":"order","n":%d}`, i)
		size = len(tx)
		_, err := m.PushRaw([]byte(tx))
		require.NoError(t, err)
	}

	txs := m.SelectForProposal(int64(2 * size))
	assert.Len(t, txs, 2)
	assert.Equal(t, 1, m.Len())

	txs = m.SelectForProposal(0)
	assert.Len(t, txs, 1)
	assert.Equal(t, `{"type":"order","n":2}`, string(txs[0]))
}

func TestMempoolOversizeDoesNotStall(t *testing.T) {
	m := NewMempool(0)
	big := `{"type":"order","pad":"` + strings.Repeat("x", 64) + `"}`
	small := `{"type":"order","n":1}`
	_, err := m.PushRaw([]byte(big))
	require.NoError(t, err)
	_, err = m.PushRaw([]byte(small))
	require.NoError(t, err)

	txs := m.SelectForProposal(int64(len(small)))
	require.Len(t, txs, 1)
	assert.Equal(t, small, string(txs[0]))
	assert.Zero(t, m.Len())
}

func TestMempoolRejectsOversize(t *testing.T) {
	m := NewMempool(0, WithMaxTxBytes(32))
	_, err := m.PushRaw([]byte(`{"type":"order","pad":"` + strings.Repeat("x", 32) + `"}`))
	require.ErrorIs(t, err, ErrTooLarge)
	assert.Zero(t, m.Len())

	_, err = m.PushRaw([]byte(`{"type":"order"}`))
	require.NoError(t, err)
}

func TestMempoolDuplicateAndLimit(t *testing.T) {
	m := NewMempool(2)
	a := []byte(`{"type":"cancel","n":1}`)
	b := []byte(`{"type":"cancel","n":2}`)
	c := []byte(`{"type":"cancel","n":3}`)

	_, err := m.PushRaw(a)
	require.NoError(t, err)
	_, err = m.PushRaw(a)
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = m.PushRaw(b)
	require.NoError(t, err)
	_, err = m.PushRaw(c)
	require.ErrorIs(t, err, ErrFull)

	// Once selected a transaction may be resubmitted.
	m.SelectForProposal(0)
	_, err = m.PushRaw(a)
	require.NoError(t, err)
}

func TestPushCopiesInput(t *testing.T) {
	m := NewMempool(0)
	b := []byte(`{"type":"burn"}`)
	_, err := m.PushRaw(b)
	require.NoError(t, err)
	b[2] = 'X'

	txs := m.SelectForProposal(0)
	require.Len(t, txs, 1)
	assert.Equal(t, `{"type":"burn"}`, string(txs[0]))
}
