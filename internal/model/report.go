package model

// DataPoint is one billing-period entry under a site in the final report.
type DataPoint struct {
	BillingPeriod    string  `json:"billing_period"`
	ConsumptionValue float64 `json:"consumption_value"`
	ConsumptionUnit  string  `json:"consumption_unit"`
}

// SiteReport groups the consumption history of a single site. Site identity
// is the (site_id, service_address) pair; when site_id is absent the address
// or site name alone determines identity.
type SiteReport struct {
	SiteID         string      `json:"site_id,omitempty"`
	ServiceAddress string      `json:"service_address,omitempty"`
	SiteName       string      `json:"site_name,omitempty"`
	Data           []DataPoint `json:"data"`
}

// CustomerReport groups the sites billed to one customer.
type CustomerReport struct {
	CustomerName       string       `json:"customer_name"`
	CustomerIdentifier string       `json:"customer_identifier"`
	Sites              []SiteReport `json:"sites"`
}

// FinalReport is the nested output of Stage 2: customers → sites → data
// points sorted oldest to newest by billing period.
type FinalReport struct {
	Customers []CustomerReport `json:"customers"`
}

// RecordCount returns the total number of data points across all customers
// and sites.
func (r *FinalReport) RecordCount() int {
	n := 0
	for _, c := range r.Customers {
		for _, s := range c.Sites {
			n += len(s.Data)
		}
	}
	return n
}
