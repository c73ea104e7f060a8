package dialect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

// ValidateToolCalls checks every ToolCall emitted by the model against the
// json_schema_for_arguments declared on the matching ToolDef in req.Tools.
// A call carrying arguments that don't satisfy its declared schema is
// rejected rather than passed through to the caller as a silently malformed
// tool_calls entry. Calls are not checked when req.Tools is empty, when they
// name a tool absent from req.Tools, or when that tool declares no schema.
func ValidateToolCalls(req domain.ChatRequest, resp domain.ChatResponse) error {
	if len(req.Tools) == 0 {
		return nil
	}
	schemas := make(map[string]map[string]any, len(req.Tools))
	for _, t := range req.Tools {
		schemas[t.Name] = t.JSONSchemaForArguments
	}

	for _, choice := range resp.Choices {
		for _, call := range choice.Message.ToolCalls {
			schema, ok := schemas[call.Name]
			if !ok || schema == nil {
				continue
			}
			if err := validateArguments(call.Name, call.ArgumentsJSON, schema); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateArguments(toolName, argumentsJSON string, schema map[string]any) error {
	var parsed any
	if err := json.Unmarshal([]byte(argumentsJSON), &parsed); err != nil {
		return gatewayerr.Validation("tool %q arguments are not valid JSON: %v", toolName, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewStringLoader(argumentsJSON))
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindValidation, fmt.Sprintf("tool %q schema could not be evaluated", toolName), err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return gatewayerr.Validation("tool %q arguments do not match its declared schema: %s", toolName, strings.Join(errs, "; "))
	}
	return nil
}
