package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const offerDataSchemaURL = "https://offers.internal/schemas/offer-data.json"

// OfferDataJSONSchema constrains the structured data handed to the document
// generator. Templates may reference extra keys, so unknown properties pass.
const OfferDataJSONSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["candidate_name", "candidate_email", "position", "salary"],
  "properties": {
    "candidate_name": {"type": "string", "minLength": 1},
    "candidate_email": {"type": "string", "format": "email"},
    "position": {"type": "string", "minLength": 1},
    "salary": {"type": "string", "pattern": "^[0-9][0-9,.]*$"},
    "currency": {"type": "string", "minLength": 3, "maxLength": 3},
    "start_date": {"type": "string", "format": "date"},
    "company_name": {"type": "string"},
    "application_ref": {"type": "string"}
  }
}`

var compileOfferSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(OfferDataJSONSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal offer data schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(offerDataSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add offer data schema: %w", err)
	}
	return c.Compile(offerDataSchemaURL)
})

// ValidateOfferData checks merged candidate and job data before generation.
func ValidateOfferData(data map[string]any) error {
	if len(data) == 0 {
		return validationf("offer data is required")
	}
	schema, err := compileOfferSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return validationf("offer data is not serializable: %v", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return validationf("offer data: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return validationf("offer data: %v", err)
	}
	return nil
}

// ValidateIdentity requires the fields a background check provider needs to
// match a person: name, email and one of date of birth or phone.
func ValidateIdentity(p ApplicationProfile) error {
	missing := make([]string, 0)
	if strings.TrimSpace(p.CandidateName) == "" {
		missing = append(missing, "candidate_name")
	}
	if strings.TrimSpace(p.CandidateEmail) == "" {
		missing = append(missing, "candidate_email")
	}
	if strings.TrimSpace(p.CandidateDateOfBirth) == "" && strings.TrimSpace(p.CandidatePhone) == "" {
		missing = append(missing, "candidate_date_of_birth|candidate_phone")
	}
	if len(missing) > 0 {
		return validationf("candidate identity incomplete: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
