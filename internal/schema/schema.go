// Package schema validates JSON documents against per-intent structural
// schemas. Schemas are plain data (required field names plus allowed types
// per field), resolved once at registry construction.
package schema

import (
	"sort"
)

// JSONType is a runtime JSON type name.
type JSONType string

const (
	TypeNull    JSONType = "null"
	TypeBoolean JSONType = "boolean"
	TypeNumber  JSONType = "number"
	TypeString  JSONType = "string"
	TypeArray   JSONType = "array"
	TypeObject  JSONType = "object"
	TypeUnknown JSONType = "unknown"
)

// Validity is the tri-state outcome of a validation pass.
type Validity string

const (
	Valid   Validity = "valid"
	Invalid Validity = "invalid"
	// ValidityUnknown means no schema exists for the intent. It is not an
	// error; it signals reduced confidence in the rest of the output.
	ValidityUnknown Validity = "unknown"
)

// Property constrains one field to a set of allowed JSON types.
type Property struct {
	Types []JSONType
}

// Schema is the structural contract for one intent.
type Schema struct {
	Required   []string
	Properties map[string]Property
}

// Anomaly reports a field present with an unexpected runtime type.
type Anomaly struct {
	Field    string `json:"field"`
	Issue    string `json:"issue"`
	Observed any    `json:"observed_value"`
}

// Result is the outcome of validating one document. Missing required
// fields and type anomalies are reported separately and never
// double-counted.
type Result struct {
	Validity      Validity  `json:"validity"`
	Schema        string    `json:"schema,omitempty"`
	MissingFields []string  `json:"missing_fields,omitempty"`
	Anomalies     []Anomaly `json:"anomalies,omitempty"`
}

// Registry maps intent names to schemas.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds a registry over the given intent schemas.
func NewRegistry(schemas map[string]Schema) *Registry {
	if schemas == nil {
		schemas = map[string]Schema{}
	}
	return &Registry{schemas: schemas}
}

// DefaultRegistry covers the built-in document intents.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Schema{
		"invoice": {
			Required: []string{"invoice_number", "date", "total_amount"},
			Properties: map[string]Property{
				"invoice_number": {Types: []JSONType{TypeString}},
				"date":           {Types: []JSONType{TypeString}},
				"total_amount":   {Types: []JSONType{TypeNumber, TypeString}},
				"currency":       {Types: []JSONType{TypeString}},
				"vendor":         {Types: []JSONType{TypeObject}},
				"customer":       {Types: []JSONType{TypeObject}},
				"items":          {Types: []JSONType{TypeArray}},
				"payment_terms":  {Types: []JSONType{TypeString}},
			},
		},
		"rfq": {
			Required: []string{"rfq_number", "date", "items"},
			Properties: map[string]Property{
				"rfq_number":     {Types: []JSONType{TypeString}},
				"date":           {Types: []JSONType{TypeString}},
				"customer":       {Types: []JSONType{TypeObject}},
				"items":          {Types: []JSONType{TypeArray}},
				"delivery_date":  {Types: []JSONType{TypeString}},
				"contact_person": {Types: []JSONType{TypeString}},
			},
		},
		"complaint": {
			Required: []string{"type", "customer_id", "message"},
			Properties: map[string]Property{
				"type":        {Types: []JSONType{TypeString}},
				"customer_id": {Types: []JSONType{TypeString}},
				"message":     {Types: []JSONType{TypeString}},
				"severity":    {Types: []JSONType{TypeString}},
				"category":    {Types: []JSONType{TypeString}},
				"date":        {Types: []JSONType{TypeString}},
			},
		},
	})
}

// Has reports whether a schema exists for the intent.
func (r *Registry) Has(intent string) bool {
	_, ok := r.schemas[intent]
	return ok
}

// Validate checks doc against the schema registered for intent. It is a
// pure function of (registry, intent, doc): repeated calls return
// identical results.
func (r *Registry) Validate(intent string, doc map[string]any) Result {
	schema, ok := r.schemas[intent]
	if !ok {
		return Result{Validity: ValidityUnknown}
	}

	res := Result{Validity: Valid, Schema: intent}

	for _, field := range schema.Required {
		if _, present := doc[field]; !present {
			res.MissingFields = append(res.MissingFields, field)
		}
	}
	sort.Strings(res.MissingFields)

	// Walk properties in sorted order so anomaly output is stable.
	fields := make([]string, 0, len(schema.Properties))
	for field := range schema.Properties {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, present := doc[field]
		if !present {
			continue
		}
		observed := TypeOf(value)
		if !typeAllowed(observed, schema.Properties[field].Types) {
			res.Anomalies = append(res.Anomalies, Anomaly{
				Field:    field,
				Issue:    "expected type " + typeList(schema.Properties[field].Types) + ", got " + string(observed),
				Observed: value,
			})
		}
	}

	if len(res.MissingFields) > 0 || len(res.Anomalies) > 0 {
		res.Validity = Invalid
	}
	return res
}

// TypeOf returns the JSON runtime type of a decoded value.
func TypeOf(value any) JSONType {
	switch value.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64, int, int64:
		return TypeNumber
	case string:
		return TypeString
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	default:
		return TypeUnknown
	}
}

func typeAllowed(observed JSONType, allowed []JSONType) bool {
	for _, t := range allowed {
		if t == observed {
			return true
		}
	}
	return false
}

func typeList(types []JSONType) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += " or "
		}
		out += string(t)
	}
	return out
}
