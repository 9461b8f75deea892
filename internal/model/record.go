package model

// ConsumptionRecord is one site/period/value/unit tuple extracted from a
// single page of a utility document.
type ConsumptionRecord struct {
	SiteID          string  `json:"site_id,omitempty"`
	ServiceAddress  string  `json:"service_address,omitempty"`
	SiteName        string  `json:"site_name,omitempty"`
	BillingPeriod   string  `json:"billing_period"`
	ConsumptionValue float64 `json:"consumption_value"`
	ConsumptionUnit string  `json:"consumption_unit"`
}

// Location returns the address component of the record's site identity:
// the service address when present, otherwise the site name.
func (r ConsumptionRecord) Location() string {
	if r.ServiceAddress != "" {
		return r.ServiceAddress
	}
	return r.SiteName
}

// PageRecord is the structured output of Stage 1 for one page of one
// document: the customer identity found on the page plus every consumption
// record the page contained. A PageRecord with no consumption records
// carries no aggregable signal and is discarded before storage.
type PageRecord struct {
	CustomerName       string              `json:"customer_name"`
	CustomerIdentifier string              `json:"customer_identifier"`
	ConsumptionRecords []ConsumptionRecord `json:"consumption_records"`

	// Provenance, stamped by the Stage-1 processor. Not part of the LLM
	// response schema.
	DocumentName string `json:"document_name,omitempty"`
	PageNumber   int    `json:"page_number,omitempty"`
}

// Empty reports whether the page yielded no consumption data.
func (p PageRecord) Empty() bool {
	return len(p.ConsumptionRecords) == 0
}

// FlatRecord is a ConsumptionRecord stamped with its parent page's customer
// identity. FlatRecords exist only transiently, as the input to Stage 2;
// the stamped fields are never persisted back onto the stored PageRecord.
type FlatRecord struct {
	CustomerName       string  `json:"customer_name"`
	CustomerIdentifier string  `json:"customer_identifier"`
	SiteID             string  `json:"site_id,omitempty"`
	ServiceAddress     string  `json:"service_address,omitempty"`
	SiteName           string  `json:"site_name,omitempty"`
	BillingPeriod      string  `json:"billing_period"`
	ConsumptionValue   float64 `json:"consumption_value"`
	ConsumptionUnit    string  `json:"consumption_unit"`
}

// Flatten expands accumulated page records into a flat list of consumption
// records, each stamped with its parent's customer identity. Input order is
// preserved: pages in arrival order, records in page order.
func Flatten(pages []PageRecord) []FlatRecord {
	var flat []FlatRecord
	for _, page := range pages {
		for _, rec := range page.ConsumptionRecords {
			flat = append(flat, FlatRecord{
				CustomerName:       page.CustomerName,
				CustomerIdentifier: page.CustomerIdentifier,
				SiteID:             rec.SiteID,
				ServiceAddress:     rec.ServiceAddress,
				SiteName:           rec.SiteName,
				BillingPeriod:      rec.BillingPeriod,
				ConsumptionValue:   rec.ConsumptionValue,
				ConsumptionUnit:    rec.ConsumptionUnit,
			})
		}
	}
	return flat
}
