package logentry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeze(t *testing.T) {
	type payment struct {
		Ref    string  `json:"mandate_ref"`
		Amount float64 `json:"amount"`
		Edited bool    `json:"edited"`
	}

	tests := []struct {
		name string
		v    interface{}
		want Values
	}{
		{name: "nil", v: nil, want: Values{}},
		{name: "struct", v: payment{Ref: "000001/GENO", Amount: 12.5, Edited: true}, want: Values{"mandate_ref": "000001/GENO", "amount": 12.5, "edited": true}},
		{name: "map", v: map[string]int{"quantity": 2}, want: Values{"quantity": float64(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Freeze(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Freeze(make(chan int))
	assert.Error(t, err)
}

func TestQueryFilter_Match(t *testing.T) {
	e := Entry{Kind: KindShareTransfer, MemberID: "m1"}
	assert.True(t, (*QueryFilter)(nil).Match(e))
	assert.True(t, (&QueryFilter{MemberID: "m1"}).Match(e))
	assert.False(t, (&QueryFilter{MemberID: "m2"}).Match(e))
	assert.False(t, (&QueryFilter{Kind: KindPaymentEdit}).Match(e))
}
