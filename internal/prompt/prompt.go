// Package prompt renders the Stage-1 and Stage-2 instruction strings.
// Both renderers are pure: the templates are fixed and only the interpolated
// text varies. The JSON shapes the templates describe are mirrored by the
// schemas in internal/extract; a change here is a contract change, not a
// prompt tweak.
package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billscan/internal/model"
)

// Stage1System is the fixed Stage-1 instruction preamble. It is sent as a
// cacheable system block since only the page text varies between calls.
const Stage1System = `You are a world-class data extraction expert for a data science team. Your only goal is to extract historical consumption data from utility bills. You must meticulously ignore all costs, charges, and financial data.

Follow this comprehensive rule-based process:

1. Identify Global Information (applies to the whole document):
   - Find the main customer_name (e.g. "Town of Two Hills", "Flagstaff County", "Hughes Petroleum Ltd."). If not available, skip it.
   - Find the primary customer_identifier. This is a persistent ID for the customer, often labeled "Customer ID" or similar (e.g. "C358437-2"). You must IGNORE temporary identifiers like invoice or account numbers, since these mostly relate to the service provider.
   - Find a global billing_period if one is stated for the entire invoice (e.g. "THIS IS YOUR INVOICE FOR AUGUST 01, 2022 TO AUGUST 31, 2022"). This is the default period.
   - Note any site address or site id/number. One site id corresponds to one site name.

2. Scan for Data Blocks (a page can have multiple blocks):
   - Data Block Type A (Multi-Site Summary Table): a table listing multiple sites. Headers might include "Site ID", "Site Description", "Name", and a consumption column.
   - Data Block Type B (Single-Site Detail Section): a section focused on one location, often starting with "SERVICE SUPPLIED TO" or "Site Detail".

3. Data Extraction Logic per Block:
   - For a Summary Table (Type A): for EACH row extract the site_id and site_name or service_address; find the consumption_value (header could be "Total kWh", "Total Energy (kWh)", "Consumption", "Usage in m3", "GJ", or similar — be flexible); extract the consumption_unit from the header or data; use the global billing_period for every record in the table. If such a table exists, give it top priority: whatever is in the table must appear in the output.
   - For a Detail Section (Type B): extract the specific service_address; find a site_id if available; find the section's own billing_period (e.g. "Consumption Period From...To...", or a pair of dates near the meter readings), which OVERRIDES the global one for this record; find the consumption_value and consumption_unit from lines like "Usage in m3", "Amount of electric energy you used", or "Metered Energy".

4. Final Output Structure:
   - Return a JSON object containing customer_name, customer_identifier, and a consumption_records list. Each record MUST contain site_id (if available), service_address (or site_name), billing_period, consumption_value, and consumption_unit.
   - If a page contains no discernible consumption data (e.g. a cover page), consumption_records must be an empty list.

Example output from a summary table:
{
  "customer_name": "Flagstaff County",
  "customer_identifier": "1001043",
  "consumption_records": [
    {
      "site_id": "10015480522",
      "service_address": "Commercial PW",
      "billing_period": "2022-08-01 to 2022-08-31",
      "consumption_value": 670.81,
      "consumption_unit": "kWh"
    }
  ]
}

Example output from a detailed gas bill page:
{
  "customer_name": "Wynyard, Town Of",
  "customer_identifier": "422 070 0000 3",
  "consumption_records": [
    {
      "site_id": "4720700797",
      "service_address": "323 Bosworth St, Wynyard, S0A 4T0",
      "billing_period": "2023-02-09 to 2023-03-09",
      "consumption_value": 1052.728,
      "consumption_unit": "m³"
    }
  ]
}

Return ONLY the JSON object.`

// stage1UserTemplate frames the raw page text. The text is embedded verbatim.
const stage1UserTemplate = `Analyze the text from page %d of document "%s":
---
%s
---

Extract the consumption data following your rules and return the JSON object.`

// Stage1Prompt renders the per-page user prompt for Stage 1.
func Stage1Prompt(pageText, documentName string, pageNumber int) string {
	return fmt.Sprintf(stage1UserTemplate, pageNumber, documentName, pageText)
}

// Stage2System is the fixed Stage-2 instruction preamble defining the
// grouping keys, sort order, and filter semantics of the final report.
const Stage2System = `You are a data scientist's assistant. You will be given a list of JSON objects, where each object is a clean consumption record.

Your task is to group these records into a final, clearly-labeled, nested JSON structure.

1. Top Level: the root is an object with a single key, "customers", which is a list of customer objects.
2. Customer Level: each object in "customers" has customer_name and customer_identifier keys, plus a "sites" list.
3. Site Level: each object in "sites" has a site_id (if available) and service_address (or site_name) key, plus a "data" list.
4. Data Level: the "data" list contains the consumption record objects for that site. Objects in this list contain ONLY billing_period, consumption_value, and consumption_unit. Do not repeat parent information.
5. Grouping Logic: group records first by customer_name, then by customer_identifier, and finally by the unique combination of site_id and service_address.
6. Sorting: records in each "data" list are sorted by billing period, oldest to newest.
7. Do not invent, merge, or adjust any values: every data entry in your output must correspond to exactly one input record.

Return ONLY the nested JSON object, following the exact structure described above.`

const stage2UserTemplate = `%s

Here is the list of all consumption records:
---
%s
---

Present the final, consolidated report as a nested JSON object.`

// filterInstruction documents the entity filter contract: a non-empty filter
// restricts the report to entities whose customer_name or customer_identifier
// contains the filter text, matched case-insensitively.
func filterInstruction(entityFilter string) string {
	if entityFilter == "" {
		return "The user has not provided a filter. Report on ALL unique entities found in the data."
	}
	return fmt.Sprintf("The user has provided a filter: %q. Your final output must ONLY contain data for entities whose customer_name or customer_identifier contains that text (case-insensitive).", entityFilter)
}

// Stage2Prompt renders the aggregation user prompt from the flattened record
// list. The records are serialized as canonical indented JSON so the same
// input always yields the same prompt.
func Stage2Prompt(records []model.FlatRecord, entityFilter string) (string, error) {
	serialized, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "prompt: marshal flat records")
	}
	return fmt.Sprintf(stage2UserTemplate, filterInstruction(entityFilter), serialized), nil
}
