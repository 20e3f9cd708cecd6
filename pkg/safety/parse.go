package safety

import (
	"bytes"
	"encoding/json"

	"github.com/45ck/Portarium-sub009/pkg/contracts"
	"github.com/45ck/Portarium-sub009/pkg/schema"
)

// ParseContext validates a JSON safety context against the embedded schema
// and decodes it. Structural problems are returned as
// *contracts.ValidationError.
func ParseContext(data []byte) (Context, error) {
	if err := schema.ValidateJSON(schema.SafetyContext, data); err != nil {
		return Context{}, err
	}

	var ctx Context
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ctx); err != nil {
		return Context{}, contracts.Invalid("SafetyContext", "", "%v", err)
	}
	if !ctx.ExecutionTier.Valid() {
		return Context{}, contracts.Invalid("SafetyContext", "executionTier", "unknown execution tier %q", ctx.ExecutionTier)
	}
	return ctx, nil
}
