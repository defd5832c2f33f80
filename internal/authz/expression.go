package authz

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// evaluateExpression runs an expr-lang condition against the user and
// resource attribute maps, e.g. `user.department == resource.department`.
func evaluateExpression(src string, userAttrs, resourceAttrs map[string]any) (bool, error) {
	env := map[string]any{
		"user":     userAttrs,
		"resource": resourceAttrs,
	}
	program, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition expression: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition expression: %w", err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition expression returned %T, want bool", out)
	}
	return result, nil
}
