package catalog_test

import (
	"testing"

	"github.com/xraph/herald/catalog"
)

const amountSchema = `{
  "type": "object",
  "properties": {
    "amount": {"type": "number"},
    "currency": {"type": "string"}
  },
  "required": ["amount", "currency"]
}`

func TestValidatorEmptySchema(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate(nil, []byte(`{"key":"value"}`)); err != nil {
		t.Fatal("empty schema should skip validation, got:", err)
	}
}

func TestValidatorValidPayload(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate([]byte(amountSchema), []byte(`{"amount":100.50,"currency":"USD"}`)); err != nil {
		t.Fatal("valid payload should pass, got:", err)
	}
}

func TestValidatorMissingRequired(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate([]byte(amountSchema), []byte(`{"amount":1}`)); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidatorWrongType(t *testing.T) {
	v := catalog.NewValidator()

	schema := []byte(`{"type":"object","properties":{"count":{"type":"integer"}}}`)
	if err := v.Validate(schema, []byte(`{"count":"not-a-number"}`)); err == nil {
		t.Fatal("expected validation error for wrong type")
	}
}

func TestValidatorEmptyDataIsNull(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate([]byte(amountSchema), nil); err == nil {
		t.Fatal("null data should fail an object schema")
	}
}

func TestValidatorCaching(t *testing.T) {
	v := catalog.NewValidator()

	first, err := v.Compile([]byte(amountSchema))
	if err != nil {
		t.Fatal(err)
	}
	second, err := v.Compile([]byte(amountSchema))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the cached schema on second compile")
	}
}

func TestValidatorBadSchema(t *testing.T) {
	v := catalog.NewValidator()

	if _, err := v.Compile([]byte(`{"type": 12}`)); err == nil {
		t.Fatal("expected compile error")
	}
}
