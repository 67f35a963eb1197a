package decision

import "fmt"

type identNode struct{ name string }

func (n *identNode) eval(vars map[string]interface{}) (interface{}, error) {
	v, ok := vars[n.name]
	if !ok {
		return nil, fmt.Errorf("unbound identifier %q", n.name)
	}
	return v, nil
}

type literalNode struct{ value interface{} }

func (n *literalNode) eval(map[string]interface{}) (interface{}, error) { return n.value, nil }

type notNode struct{ inner node }

func (n *notNode) eval(vars map[string]interface{}) (interface{}, error) {
	v, err := n.inner.eval(vars)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("not: operand is not boolean")
	}
	return !b, nil
}

type andNode struct{ left, right node }

func (n *andNode) eval(vars map[string]interface{}) (interface{}, error) {
	l, err := boolOf(n.left, vars)
	if err != nil {
		return nil, err
	}
	if !l {
		return false, nil
	}
	return boolOf(n.right, vars)
}

type orNode struct{ left, right node }

func (n *orNode) eval(vars map[string]interface{}) (interface{}, error) {
	l, err := boolOf(n.left, vars)
	if err != nil {
		return nil, err
	}
	if l {
		return true, nil
	}
	return boolOf(n.right, vars)
}

func boolOf(n node, vars map[string]interface{}) (bool, error) {
	v, err := n.eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean operand")
	}
	return b, nil
}

type compareNode struct {
	left  node
	op    string
	right node
}

func (n *compareNode) eval(vars map[string]interface{}) (interface{}, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			return compareNumbers(lf, n.op, rf)
		}
	}

	switch n.op {
	case "==":
		return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r), nil
	case "!=":
		return fmt.Sprintf("%v", l) != fmt.Sprintf("%v", r), nil
	default:
		return nil, fmt.Errorf("operator %q requires numeric operands", n.op)
	}
}

func compareNumbers(l float64, op string, r float64) (bool, error) {
	switch op {
	case "==":
		return l == r, nil
	case "!=":
		return l != r, nil
	case "<":
		return l < r, nil
	case "<=":
		return l <= r, nil
	case ">":
		return l > r, nil
	case ">=":
		return l >= r, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
