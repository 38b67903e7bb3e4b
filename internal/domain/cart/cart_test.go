package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cartsync/internal/domain/product"
)

func TestTempLineID(t *testing.T) {
	id := TempLineID()
	assert.True(t, id.Temporary())
	assert.NotEqual(t, id, TempLineID())

	assert.False(t, LineID("42").Temporary())
}

func TestLineClone_Independent(t *testing.T) {
	score := 0.3
	subScore := 0.7
	l := Line{
		ID:          "42",
		ProductCode: "MILK-1L",
		Quantity:    2,
		Substitutes: []Substitute{{ProductCode: "OAT-1L", Priority: 1, RiskScore: &subScore}},
		Product:     &product.Product{Code: "MILK-1L", Name: "Milk 1L", Price: decimal.RequireFromString("1.49")},
		RiskScore:   &score,
	}

	c := l.Clone()
	c.Substitutes[0].ProductCode = "SOY-1L"
	*c.RiskScore = 0.9
	*c.Substitutes[0].RiskScore = 0.1
	c.Product.Name = "changed"

	assert.Equal(t, "OAT-1L", l.Substitutes[0].ProductCode)
	assert.Equal(t, 0.3, *l.RiskScore)
	assert.Equal(t, 0.7, *l.Substitutes[0].RiskScore)
	assert.Equal(t, "Milk 1L", l.Product.Name)
}

func TestSortSubstitutes(t *testing.T) {
	subs := []Substitute{
		{ProductCode: "SOY-1L", Priority: 2},
		{ProductCode: "OAT-1L", Priority: 1},
	}
	SortSubstitutes(subs)
	assert.Equal(t, "OAT-1L", subs[0].ProductCode)
	assert.Equal(t, "SOY-1L", subs[1].ProductCode)
}

func TestValidateSubstitutes(t *testing.T) {
	tests := []struct {
		name    string
		subs    []Substitute
		wantErr any
	}{
		{
			name: "valid pair",
			subs: []Substitute{{ProductCode: "OAT-1L", Priority: 1}, {ProductCode: "SOY-1L", Priority: 2}},
		},
		{
			name: "empty",
			subs: nil,
		},
		{
			name:    "too many",
			subs:    []Substitute{{ProductCode: "A", Priority: 1}, {ProductCode: "B", Priority: 2}, {ProductCode: "C", Priority: 1}},
			wantErr: new(*MaxSubstitutesError),
		},
		{
			name:    "priority out of range",
			subs:    []Substitute{{ProductCode: "A", Priority: 3}},
			wantErr: new(*InvalidPriorityError),
		},
		{
			name:    "duplicate priority",
			subs:    []Substitute{{ProductCode: "A", Priority: 1}, {ProductCode: "B", Priority: 1}},
			wantErr: new(*PriorityTakenError),
		},
		{
			name:    "substitute equals primary",
			subs:    []Substitute{{ProductCode: "MILK-1L", Priority: 1}},
			wantErr: new(*DuplicateSubstituteError),
		},
		{
			name:    "duplicate substitute code",
			subs:    []Substitute{{ProductCode: "A", Priority: 1}, {ProductCode: "A", Priority: 2}},
			wantErr: new(*DuplicateSubstituteError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubstitutes("MILK-1L", tt.subs)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorAs(t, err, tt.wantErr)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(ErrEmptyCart))
	assert.True(t, IsValidation(&LineNotFoundError{ID: "1"}))
	assert.True(t, IsValidation(&EditInProgressError{ProductCode: "X"}))
	assert.False(t, IsValidation(assert.AnError))
}
