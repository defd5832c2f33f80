package authz

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OpEquals is the only comparison operator the policy documents use.
const OpEquals = "equals"

// Condition is one node of a predicate tree over user and resource
// attributes: either an allOf/anyOf combinator or a leaf comparing a
// prefixed attribute ("user.x" / "resource.x") against a literal or a
// reference to an attribute on the other principal.
type Condition struct {
	AllOf []Condition
	AnyOf []Condition
	Attr  string
	Op    string
	Value any
	Ref   string
}

// Evaluate walks the tree. Missing attributes and unknown operators make a
// leaf false; evaluation never fails.
func (c *Condition) Evaluate(userAttrs, resourceAttrs map[string]any) bool {
	switch {
	case c.AllOf != nil:
		for i := range c.AllOf {
			if !c.AllOf[i].Evaluate(userAttrs, resourceAttrs) {
				return false
			}
		}
		return true
	case c.AnyOf != nil:
		for i := range c.AnyOf {
			if c.AnyOf[i].Evaluate(userAttrs, resourceAttrs) {
				return true
			}
		}
		return false
	}

	if c.Op != "" && c.Op != OpEquals {
		return false
	}
	lhs, ok := lookupAttr(c.Attr, userAttrs, resourceAttrs)
	if !ok {
		return false
	}
	rhs := c.Value
	if c.Ref != "" {
		rhs, ok = lookupAttr(c.Ref, userAttrs, resourceAttrs)
		if !ok {
			return false
		}
	}
	return fmt.Sprintf("%v", lhs) == fmt.Sprintf("%v", rhs)
}

func lookupAttr(name string, userAttrs, resourceAttrs map[string]any) (any, bool) {
	if attr, found := strings.CutPrefix(name, "user."); found {
		v, ok := userAttrs[attr]
		return v, ok
	}
	if attr, found := strings.CutPrefix(name, "resource."); found {
		v, ok := resourceAttrs[attr]
		return v, ok
	}
	return nil, false
}

// Matches evaluates the condition set against the given attribute maps.
// The expression form can fail (bad program); the predicate tree cannot.
func (cs *ConditionSet) Matches(userAttrs, resourceAttrs map[string]any) (bool, error) {
	if cs.Expression != "" {
		return evaluateExpression(cs.Expression, userAttrs, resourceAttrs)
	}
	if cs.Conditions == nil {
		return false, nil
	}
	return cs.Conditions.Evaluate(userAttrs, resourceAttrs), nil
}

// The wire format mirrors the policy documents:
//
//	{"allOf": [...]}
//	{"anyOf": [...]}
//	{"user.department": {"equals": "QA"}}
//	{"resource.department": {"equals": {"ref": "user.department"}}}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("condition node must have exactly one key, got %d", len(raw))
	}

	if children, ok := raw["allOf"]; ok {
		c.AllOf = []Condition{}
		return json.Unmarshal(children, &c.AllOf)
	}
	if children, ok := raw["anyOf"]; ok {
		c.AnyOf = []Condition{}
		return json.Unmarshal(children, &c.AnyOf)
	}

	for attr, body := range raw {
		c.Attr = attr
		var ops map[string]json.RawMessage
		if err := json.Unmarshal(body, &ops); err != nil {
			return fmt.Errorf("condition leaf %q: %w", attr, err)
		}
		if len(ops) != 1 {
			return fmt.Errorf("condition leaf %q must have exactly one operator", attr)
		}
		for op, operand := range ops {
			c.Op = op
			var ref struct {
				Ref string `json:"ref"`
			}
			if err := json.Unmarshal(operand, &ref); err == nil && ref.Ref != "" {
				c.Ref = ref.Ref
				return nil
			}
			return json.Unmarshal(operand, &c.Value)
		}
	}
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.AllOf != nil:
		return json.Marshal(map[string][]Condition{"allOf": c.AllOf})
	case c.AnyOf != nil:
		return json.Marshal(map[string][]Condition{"anyOf": c.AnyOf})
	}
	op := c.Op
	if op == "" {
		op = OpEquals
	}
	var operand any = c.Value
	if c.Ref != "" {
		operand = map[string]string{"ref": c.Ref}
	}
	return json.Marshal(map[string]map[string]any{c.Attr: {op: operand}})
}
