package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/freshcart/internal/domain/apperr"
)

func TestCheckEligibility(t *testing.T) {
	active := func(minimum string) *Coupon {
		return &Coupon{ID: 1, Code: "FRESH10", DiscountValue: "10", MinOrderAmount: minimum, IsActive: true}
	}

	tests := []struct {
		name      string
		uc        UserCoupon
		consumer  int64
		linePrice string
		wantErr   error
		wantKind  apperr.Kind
	}{
		{
			name:      "eligible",
			uc:        UserCoupon{ID: 1, ConsumerID: 7, Coupon: active("1000")},
			consumer:  7,
			linePrice: "1000",
		},
		{
			name:      "empty minimum means no threshold",
			uc:        UserCoupon{ID: 1, ConsumerID: 7, Coupon: active("")},
			consumer:  7,
			linePrice: "1",
		},
		{
			name:      "wrong owner",
			uc:        UserCoupon{ID: 1, ConsumerID: 8, Coupon: active("0")},
			consumer:  7,
			linePrice: "1000",
			wantErr:   ErrForbidden,
			wantKind:  apperr.KindForbidden,
		},
		{
			name:      "ownership checked before usage",
			uc:        UserCoupon{ID: 1, ConsumerID: 8, IsUsed: true, OrderID: 3, Coupon: active("0")},
			consumer:  7,
			linePrice: "1000",
			wantErr:   ErrForbidden,
			wantKind:  apperr.KindForbidden,
		},
		{
			name:      "already used",
			uc:        UserCoupon{ID: 1, ConsumerID: 7, IsUsed: true, OrderID: 3, Coupon: active("0")},
			consumer:  7,
			linePrice: "1000",
			wantErr:   ErrAlreadyUsed,
			wantKind:  apperr.KindConflict,
		},
		{
			name:      "inactive",
			uc:        UserCoupon{ID: 1, ConsumerID: 7, Coupon: &Coupon{DiscountValue: "10", IsActive: false}},
			consumer:  7,
			linePrice: "1000",
			wantErr:   ErrInactive,
			wantKind:  apperr.KindConflict,
		},
		{
			name:      "below minimum",
			uc:        UserCoupon{ID: 1, ConsumerID: 7, Coupon: active("5000")},
			consumer:  7,
			linePrice: "4999",
			wantErr:   ErrBelowMinimum,
			wantKind:  apperr.KindInvalidInput,
		},
		{
			name:      "malformed minimum",
			uc:        UserCoupon{ID: 1, ConsumerID: 7, Coupon: active("lots")},
			consumer:  7,
			linePrice: "4999",
			wantErr:   ErrMalformed,
			wantKind:  apperr.KindInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEligibility(&tt.uc, tt.consumer, decimal.RequireFromString(tt.linePrice), "Apples")
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
		})
	}
}

func TestBelowMinimumError_Message(t *testing.T) {
	uc := UserCoupon{ConsumerID: 1, Coupon: &Coupon{DiscountValue: "10", MinOrderAmount: "3000", IsActive: true}}
	err := CheckEligibility(&uc, 1, decimal.NewFromInt(2500), "Organic Milk")

	var bm *BelowMinimumError
	require.ErrorAs(t, err, &bm)
	assert.Contains(t, err.Error(), "Organic Milk")
	assert.Contains(t, err.Error(), "2500")
	assert.Contains(t, err.Error(), "3000")
}

func TestCoupon_AppliesToCategory(t *testing.T) {
	c := Coupon{CategoryIDs: []int64{2, 5}}
	assert.True(t, c.AppliesToCategory(5))
	assert.False(t, c.AppliesToCategory(3))
	assert.False(t, (&Coupon{}).AppliesToCategory(1))
}

func TestUserCoupon_StateTransitions(t *testing.T) {
	uc := UserCoupon{ID: 1, ConsumerID: 1}

	require.NoError(t, uc.Apply())
	assert.True(t, uc.IsApplied)

	require.NoError(t, uc.Use(42))
	assert.True(t, uc.IsUsed)
	assert.False(t, uc.IsApplied)
	assert.Equal(t, int64(42), uc.OrderID)

	require.ErrorIs(t, uc.Apply(), ErrAlreadyUsed)
	require.ErrorIs(t, uc.Use(43), ErrAlreadyUsed)

	uc.Rollback()
	assert.False(t, uc.IsUsed)
	assert.False(t, uc.IsApplied)
	assert.Zero(t, uc.OrderID)
	require.NoError(t, uc.Apply())
}
