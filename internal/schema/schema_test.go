package schema

import (
	"reflect"
	"testing"
)

func TestValidateInvoiceComplete(t *testing.T) {
	r := DefaultRegistry()

	res := r.Validate("invoice", map[string]any{
		"invoice_number": "X1",
		"date":           "2024-01-01",
		"total_amount":   1250.0,
	})
	if res.Validity != Valid {
		t.Errorf("validity = %q, want valid (result: %+v)", res.Validity, res)
	}
	if len(res.MissingFields) != 0 || len(res.Anomalies) != 0 {
		t.Errorf("unexpected issues: %+v", res)
	}
}

func TestValidateInvoiceMissingTotalAmount(t *testing.T) {
	r := DefaultRegistry()

	res := r.Validate("invoice", map[string]any{
		"type":           "invoice",
		"invoice_number": "X1",
		"date":           "2024-01-01",
	})
	if res.Validity != Invalid {
		t.Errorf("validity = %q, want invalid", res.Validity)
	}
	if !reflect.DeepEqual(res.MissingFields, []string{"total_amount"}) {
		t.Errorf("missing = %v, want [total_amount]", res.MissingFields)
	}
	if len(res.Anomalies) != 0 {
		t.Errorf("anomalies = %v, want none", res.Anomalies)
	}
}

func TestValidateTypeAnomaly(t *testing.T) {
	r := DefaultRegistry()

	res := r.Validate("invoice", map[string]any{
		"invoice_number": 42.0, // should be a string
		"date":           "2024-01-01",
		"total_amount":   "99.50", // number-or-string is allowed
	})
	if res.Validity != Invalid {
		t.Errorf("validity = %q, want invalid", res.Validity)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("anomalies = %+v, want exactly 1", res.Anomalies)
	}
	a := res.Anomalies[0]
	if a.Field != "invoice_number" {
		t.Errorf("anomalous field = %q", a.Field)
	}
	if a.Observed != 42.0 {
		t.Errorf("observed = %v", a.Observed)
	}
}

func TestMissingNotDoubleCountedAsAnomaly(t *testing.T) {
	r := DefaultRegistry()

	res := r.Validate("complaint", map[string]any{
		"type": "complaint",
		// customer_id and message absent
	})
	if len(res.MissingFields) != 2 {
		t.Errorf("missing = %v, want 2 entries", res.MissingFields)
	}
	if len(res.Anomalies) != 0 {
		t.Errorf("absent fields reported as anomalies: %+v", res.Anomalies)
	}
}

func TestValidateUnknownIntent(t *testing.T) {
	r := DefaultRegistry()

	res := r.Validate("shipping_manifest", map[string]any{"anything": true})
	if res.Validity != ValidityUnknown {
		t.Errorf("validity = %q, want unknown", res.Validity)
	}
	if res.Schema != "" || res.MissingFields != nil || res.Anomalies != nil {
		t.Errorf("unknown validity carried extra data: %+v", res)
	}
}

func TestValidateDeterministic(t *testing.T) {
	r := DefaultRegistry()
	doc := map[string]any{
		"rfq_number": 7.0,
		"customer":   "not an object",
	}

	first := r.Validate("rfq", doc)
	for i := 0; i < 5; i++ {
		if got := r.Validate("rfq", doc); !reflect.DeepEqual(first, got) {
			t.Fatalf("validation not deterministic: %+v vs %+v", first, got)
		}
	}
}

func TestTypeOf(t *testing.T) {
	cases := []struct {
		value any
		want  JSONType
	}{
		{nil, TypeNull},
		{true, TypeBoolean},
		{1.5, TypeNumber},
		{"x", TypeString},
		{[]any{1.0}, TypeArray},
		{map[string]any{}, TypeObject},
	}
	for _, tc := range cases {
		if got := TypeOf(tc.value); got != tc.want {
			t.Errorf("TypeOf(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}
