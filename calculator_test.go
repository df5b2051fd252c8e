package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sibabalw/payments-app-sub003/model"
)

func TestStatutoryCalculator(t *testing.T) {
	calculator := NewStatutoryCalculator()

	tests := []struct {
		name          string
		snapshot      model.EmployeeSnapshotV1
		expectedGross int64
		expectedNet   int64
	}{
		{
			name:          "base salary only",
			snapshot:      model.EmployeeSnapshotV1{BaseSalaryMinorUnits: 2000000},
			expectedGross: 2000000,
			expectedNet:   1600000,
		},
		{
			name: "bonus adjustment raises gross",
			snapshot: model.EmployeeSnapshotV1{
				BaseSalaryMinorUnits: 2000000,
				Adjustments:          []model.AdjustmentV1{{Code: "bonus", AmountMinorUnits: 500000}},
			},
			expectedGross: 2500000,
			expectedNet:   2000000,
		},
		{
			name: "deduction larger than salary yields negative net",
			snapshot: model.EmployeeSnapshotV1{
				BaseSalaryMinorUnits: 1000000,
				Adjustments:          []model.AdjustmentV1{{Code: "garnishee", AmountMinorUnits: -2000000}},
			},
			expectedGross: -1000000,
			expectedNet:   -1000000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := calculator.Calculate(&tt.snapshot)
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedGross, result.GrossMinorUnits)
			assert.Equal(t, tt.expectedNet, result.NetMinorUnits)
		})
	}
}

func TestStatutoryCalculator_NegativeGrossCarriesNoTax(t *testing.T) {
	result, err := NewStatutoryCalculator().Calculate(&model.EmployeeSnapshotV1{
		BaseSalaryMinorUnits: 500000,
		Adjustments:          []model.AdjustmentV1{{Code: "recovery", AmountMinorUnits: -800000}},
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), result.Tax.Total())
	assert.Equal(t, int64(-300000), result.NetMinorUnits)
}
