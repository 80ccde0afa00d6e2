// Package route defines the structured-output function every supervisor asks its
// decision delegate to call, and decodes the delegate's payload into a Decision.
package route

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"
)

// FunctionName is the name of the routing function offered to the decision delegate.
const FunctionName = "route"

const (
	FieldNext     = "next"
	FieldResponse = "response"
)

const responseDescription = "Response message indicating the outcome of the action."

// Decision is a validated routing decision.
type Decision struct {
	Next     domain.Route `mapstructure:"next" json:"next"`
	Response string       `mapstructure:"response" json:"response"`
}

// Schema builds the JSON schema of the routing function for the given choices.
func Schema(choices []domain.Route) *openapi3.Schema {
	enum := make([]any, len(choices))
	for i, c := range choices {
		enum[i] = string(c)
	}

	next := openapi3.NewStringSchema().WithEnum(enum...)
	next.Title = "Next"

	response := openapi3.NewStringSchema()
	response.Title = "Response"
	response.Description = responseDescription

	return openapi3.NewObjectSchema().
		WithProperty(FieldNext, next).
		WithProperty(FieldResponse, response).
		WithRequired([]string{FieldNext, FieldResponse})
}

// Function returns the routing function definition handed to the decision delegate.
func Function(description string, choices []domain.Route) (domain.Tool, error) {
	raw, err := json.Marshal(Schema(choices))
	if err != nil {
		return domain.Tool{}, fmt.Errorf("failed to encode route schema: %w", err)
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return domain.Tool{}, fmt.Errorf("failed to decode route schema: %w", err)
	}
	return domain.Tool{
		Name:        FunctionName,
		Description: description,
		Parameters:  params,
	}, nil
}

// Decode validates a decision payload produced for node against its choice set.
//
// Missing or mistyped fields yield *domain.MalformedDecisionError; a "next" value
// outside choices yields *domain.RoutingContractViolation.
func Decode(node domain.NodeID, choices []domain.Route, payload map[string]any) (Decision, error) {
	if payload == nil {
		return Decision{}, &domain.MalformedDecisionError{Node: node, Cause: errors.New("empty payload")}
	}
	for _, field := range []string{FieldNext, FieldResponse} {
		if _, ok := payload[field]; !ok {
			return Decision{}, &domain.MalformedDecisionError{Node: node, Field: field, Cause: errors.New("missing")}
		}
	}

	if err := Schema(choices).VisitJSON(payload); err != nil {
		return Decision{}, classify(node, choices, payload, err)
	}

	var d Decision
	if err := mapstructure.Decode(payload, &d); err != nil {
		return Decision{}, &domain.MalformedDecisionError{Node: node, Cause: err}
	}
	return d, nil
}

func classify(node domain.NodeID, choices []domain.Route, payload map[string]any, err error) error {
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		return &domain.MalformedDecisionError{Node: node, Cause: err}
	}

	field := ""
	if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
		field = ptr[0]
	}
	// Enum is checked before type, so a non-string "next" also fails here.
	if got, isString := payload[FieldNext].(string); isString && schemaErr.SchemaField == "enum" && field == FieldNext {
		return &domain.RoutingContractViolation{
			Node:    node,
			Got:     got,
			Allowed: append([]domain.Route(nil), choices...),
		}
	}
	return &domain.MalformedDecisionError{Node: node, Field: field, Cause: errors.New(schemaErr.Reason)}
}
