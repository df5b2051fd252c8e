package escrow

import (
	"github.com/shopspring/decimal"

	"github.com/sibabalw/payments-app-sub003/model"
)

// Statutory rates applied by the default calculator. These are deliberately
// simple flat rates; real tax tables plug in via model.PayrollCalculator.
var (
	payeRate = decimal.NewFromFloat(0.18)
	uifRate  = decimal.NewFromFloat(0.01)
	sdlRate  = decimal.NewFromFloat(0.01)
)

// StatutoryCalculator is the default payroll calculator. Gross is the base
// salary plus adjustments; taxes are flat-rate on gross; net is gross minus
// taxes. It never clamps: a negative net is returned as-is so the integrity
// pass can detect and correct it.
type StatutoryCalculator struct{}

func NewStatutoryCalculator() *StatutoryCalculator {
	return &StatutoryCalculator{}
}

func (c *StatutoryCalculator) Calculate(snapshot *model.EmployeeSnapshotV1) (*model.CalculationResult, error) {
	gross := snapshot.BaseSalaryMinorUnits
	for _, adjustment := range snapshot.Adjustments {
		gross += adjustment.AmountMinorUnits
	}

	taxable := gross
	if taxable < 0 {
		taxable = 0
	}
	grossDecimal := decimal.New(taxable, 0)
	tax := model.TaxBreakdownV1{
		PAYEMinorUnits: grossDecimal.Mul(payeRate).Round(0).IntPart(),
		UIFMinorUnits:  grossDecimal.Mul(uifRate).Round(0).IntPart(),
		SDLMinorUnits:  grossDecimal.Mul(sdlRate).Round(0).IntPart(),
	}

	return &model.CalculationResult{
		GrossMinorUnits: gross,
		NetMinorUnits:   gross - tax.Total(),
		Tax:             tax,
	}, nil
}
