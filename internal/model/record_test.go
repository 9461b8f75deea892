package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten_StampsCustomerIdentity(t *testing.T) {
	pages := []PageRecord{
		{
			CustomerName:       "Acme Corp",
			CustomerIdentifier: "ACME-01",
			ConsumptionRecords: []ConsumptionRecord{
				{SiteID: "S1", ServiceAddress: "1 Main St", BillingPeriod: "Jan 2026", ConsumptionValue: 10, ConsumptionUnit: "kWh"},
				{SiteID: "S2", SiteName: "Depot", BillingPeriod: "Jan 2026", ConsumptionValue: 20, ConsumptionUnit: "kWh"},
			},
		},
		{
			CustomerName: "Beta Industries",
			ConsumptionRecords: []ConsumptionRecord{
				{SiteName: "Mill", BillingPeriod: "Feb 2026", ConsumptionValue: 30, ConsumptionUnit: "m3"},
			},
		},
	}

	flat := Flatten(pages)
	require.Len(t, flat, 3)

	assert.Equal(t, "Acme Corp", flat[0].CustomerName)
	assert.Equal(t, "ACME-01", flat[0].CustomerIdentifier)
	assert.Equal(t, "S1", flat[0].SiteID)
	assert.Equal(t, "S2", flat[1].SiteID)
	assert.Equal(t, "Beta Industries", flat[2].CustomerName)
	assert.Empty(t, flat[2].CustomerIdentifier)
	assert.InDelta(t, 30, flat[2].ConsumptionValue, 0.001)
}

func TestFlatten_PreservesOrder(t *testing.T) {
	var pages []PageRecord
	for p := 1; p <= 3; p++ {
		pages = append(pages, PageRecord{
			CustomerName: "Acme Corp",
			PageNumber:   p,
			ConsumptionRecords: []ConsumptionRecord{
				{SiteName: "A", BillingPeriod: "Jan", ConsumptionValue: float64(p*10 + 1), ConsumptionUnit: "kWh"},
				{SiteName: "A", BillingPeriod: "Feb", ConsumptionValue: float64(p*10 + 2), ConsumptionUnit: "kWh"},
			},
		})
	}

	flat := Flatten(pages)
	require.Len(t, flat, 6)
	want := []float64{11, 12, 21, 22, 31, 32}
	for i, rec := range flat {
		assert.InDelta(t, want[i], rec.ConsumptionValue, 0.001)
	}
}

func TestFlatten_SkipsNothingButEmptyPagesAddNothing(t *testing.T) {
	flat := Flatten([]PageRecord{{CustomerName: "Acme Corp"}})
	assert.Empty(t, flat)
}

func TestPageRecord_Empty(t *testing.T) {
	assert.True(t, PageRecord{CustomerName: "Acme"}.Empty())
	assert.False(t, PageRecord{
		ConsumptionRecords: []ConsumptionRecord{{BillingPeriod: "Jan"}},
	}.Empty())
}

func TestConsumptionRecord_Location(t *testing.T) {
	assert.Equal(t, "1 Main St", ConsumptionRecord{ServiceAddress: "1 Main St", SiteName: "HQ"}.Location())
	assert.Equal(t, "HQ", ConsumptionRecord{SiteName: "HQ"}.Location())
	assert.Empty(t, ConsumptionRecord{}.Location())
}

func TestFinalReport_RecordCount(t *testing.T) {
	r := FinalReport{Customers: []CustomerReport{
		{Sites: []SiteReport{
			{Data: []DataPoint{{}, {}}},
			{Data: []DataPoint{{}}},
		}},
		{Sites: []SiteReport{{Data: []DataPoint{{}}}}},
	}}
	assert.Equal(t, 4, r.RecordCount())
}
