// Package export writes sweep results to spreadsheets.
package export

import (
	"io"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/charlie0129/esoh/pkg/sweep"
)

const SheetName = "eSOH"

var header = []interface{}{
	"LLI", "LAM_n", "LAM_p",
	"Vmin [V]", "Vmax [V]", "Cn [A.h]", "Cp [A.h]", "n_Li [mol]",
	"x_100", "y_100", "x_0", "y_0", "C [A.h]",
	"Error",
}

func row(p sweep.Point) []interface{} {
	r := []interface{}{
		p.LLI, p.LAMNegative, p.LAMPositive,
		p.Inputs.MinimumVoltage, p.Inputs.MaximumVoltage,
		p.Inputs.NegativeCapacity, p.Inputs.PositiveCapacity, p.Inputs.TotalLithiumMoles,
	}
	if p.Outputs != nil {
		o := p.Outputs
		r = append(r, o.X100, o.Y100, o.X0, o.Y0, o.CellCapacity, "")
	} else {
		r = append(r, nil, nil, nil, nil, nil, p.Error)
	}
	return r
}

// WriteXLSX writes points as a single-sheet workbook: one header row, then
// one row per point in the given order.
func WriteXLSX(w io.Writer, points []sweep.Point) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logrus.Warnf("failed to close workbook: %v", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return pkgerrors.Wrap(err, "failed to rename sheet")
	}

	h := header
	if err := f.SetSheetRow(SheetName, "A1", &h); err != nil {
		return pkgerrors.Wrap(err, "failed to write header")
	}

	for i, p := range points {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return pkgerrors.Wrapf(err, "row %d", i+2)
		}
		r := row(p)
		if err := f.SetSheetRow(SheetName, cell, &r); err != nil {
			return pkgerrors.Wrapf(err, "failed to write row %d", i+2)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return pkgerrors.Wrap(err, "failed to freeze header row")
	}

	if err := f.Write(w); err != nil {
		return pkgerrors.Wrap(err, "failed to write workbook")
	}

	return nil
}
