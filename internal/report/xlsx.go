package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/billscan/internal/model"
)

var xlsxHeader = []string{
	"Customer Name",
	"Customer Identifier",
	"Site ID",
	"Service Address",
	"Site Name",
	"Billing Period",
	"Consumption",
	"Unit",
}

// WriteXLSX exports a final report as a flat spreadsheet, one row per data
// point, in report order.
func WriteXLSX(r *model.FinalReport, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Consumption")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range xlsxHeader {
		header.AddCell().SetString(col)
	}

	for _, c := range r.Customers {
		for _, s := range c.Sites {
			for _, d := range s.Data {
				row := sheet.AddRow()
				row.AddCell().SetString(c.CustomerName)
				row.AddCell().SetString(c.CustomerIdentifier)
				row.AddCell().SetString(s.SiteID)
				row.AddCell().SetString(s.ServiceAddress)
				row.AddCell().SetString(s.SiteName)
				row.AddCell().SetString(d.BillingPeriod)
				row.AddCell().SetFloat(d.ConsumptionValue)
				row.AddCell().SetString(d.ConsumptionUnit)
			}
		}
	}

	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}
