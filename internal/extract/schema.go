package extract

import "github.com/santhosh-tekuri/jsonschema/v5"

// The response shapes expected from the completion service are first-class
// schemas, validated after every call. The prompt templates describe the same
// shapes in natural language; these schemas are what actually enforce them.

const stage1SchemaDoc = `{
  "type": "object",
  "properties": {
    "customer_name": {"type": "string"},
    "customer_identifier": {"type": "string"},
    "consumption_records": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "site_id": {"type": "string"},
          "service_address": {"type": "string"},
          "site_name": {"type": "string"},
          "billing_period": {"type": "string"},
          "consumption_value": {"type": "number"},
          "consumption_unit": {"type": "string"}
        },
        "required": ["billing_period", "consumption_value", "consumption_unit"],
        "anyOf": [
          {"required": ["service_address"]},
          {"required": ["site_name"]}
        ]
      }
    }
  },
  "required": ["consumption_records"]
}`

const stage2SchemaDoc = `{
  "type": "object",
  "properties": {
    "customers": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "customer_name": {"type": "string"},
          "customer_identifier": {"type": "string"},
          "sites": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "site_id": {"type": "string"},
                "service_address": {"type": "string"},
                "site_name": {"type": "string"},
                "data": {
                  "type": "array",
                  "items": {
                    "type": "object",
                    "properties": {
                      "billing_period": {"type": "string"},
                      "consumption_value": {"type": "number"},
                      "consumption_unit": {"type": "string"}
                    },
                    "required": ["billing_period", "consumption_value", "consumption_unit"]
                  }
                }
              },
              "required": ["data"]
            }
          }
        },
        "required": ["sites"]
      }
    }
  },
  "required": ["customers"]
}`

var (
	// Stage1Schema validates a per-page extraction response.
	Stage1Schema = jsonschema.MustCompileString("stage1.json", stage1SchemaDoc)

	// Stage2Schema validates the final aggregated report.
	Stage2Schema = jsonschema.MustCompileString("stage2.json", stage2SchemaDoc)
)
