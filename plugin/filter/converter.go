package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
	exprv1 "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Dialect selects placeholder style and JSON membership syntax for the
// generated SQL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// emailColumns maps filter identifiers to email table columns.
var emailColumns = map[string]string{
	"sender":         "sender_addr",
	"sender_domain":  "sender_domain",
	"subject":        "subject",
	"folder":         "folder",
	"thread_id":      "thread_id",
	"unread":         "unread",
	"has_attachment": "has_attachment",
	"size_bytes":     "size_bytes",
	"received_ts":    "received_ts",
	"labels":         "labels",
}

var comparisonOperators = map[string]string{
	"_==_": "=",
	"_!=_": "!=",
	"_<_":  "<",
	"_<=_": "<=",
	"_>_":  ">",
	"_>=_": ">=",
}

// ToSQL compiles a filter expression into a SQL condition and its bind
// arguments. argOffset is the count of placeholders already present in the
// enclosing statement; Postgres placeholders are numbered after it.
func ToSQL(expression string, dialect Dialect, argOffset int) (string, []any, error) {
	ast, err := Parse(expression)
	if err != nil {
		return "", nil, err
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to lower filter expression")
	}

	c := &converter{dialect: dialect, argOffset: argOffset}
	if err := c.convert(parsed.GetExpr()); err != nil {
		return "", nil, err
	}
	return c.buf.String(), c.args, nil
}

type converter struct {
	dialect   Dialect
	buf       strings.Builder
	args      []any
	argOffset int
}

// arg appends a bind argument and writes its placeholder.
func (c *converter) arg(value any) {
	c.args = append(c.args, value)
	if c.dialect == DialectPostgres {
		fmt.Fprintf(&c.buf, "$%d", c.argOffset+len(c.args))
		return
	}
	c.buf.WriteString("?")
}

func (c *converter) convert(expr *exprv1.Expr) error {
	if expr == nil {
		return errors.New("unexpected empty filter expression")
	}
	switch {
	case expr.GetCallExpr() != nil:
		return c.convertCall(expr.GetCallExpr())
	case expr.GetIdentExpr() != nil:
		// A bare identifier is a boolean attribute used as a condition.
		return c.convertBoolIdent(expr.GetIdentExpr().GetName(), true)
	default:
		return errors.Errorf("unsupported filter construct: %v", expr)
	}
}

func (c *converter) convertCall(call *exprv1.Expr_Call) error {
	switch fn := call.GetFunction(); fn {
	case "_&&_", "_||_":
		op := "AND"
		if fn == "_||_" {
			op = "OR"
		}
		if len(call.Args) != 2 {
			return errors.Errorf("%s expects 2 operands", op)
		}
		c.buf.WriteString("(")
		if err := c.convert(call.Args[0]); err != nil {
			return err
		}
		c.buf.WriteString(" " + op + " ")
		if err := c.convert(call.Args[1]); err != nil {
			return err
		}
		c.buf.WriteString(")")
		return nil
	case "!_":
		if len(call.Args) != 1 {
			return errors.New("! expects 1 operand")
		}
		// NOT over a bare boolean attribute compares against false.
		if ident := call.Args[0].GetIdentExpr(); ident != nil {
			return c.convertBoolIdent(ident.GetName(), false)
		}
		c.buf.WriteString("NOT (")
		if err := c.convert(call.Args[0]); err != nil {
			return err
		}
		c.buf.WriteString(")")
		return nil
	case "_==_", "_!=_", "_<_", "_<=_", "_>_", "_>=_":
		return c.convertComparison(fn, call.Args)
	case "@in":
		return c.convertMembership(call.Args)
	case "contains", "startsWith", "endsWith":
		return c.convertStringMatch(fn, call)
	default:
		return errors.Errorf("unsupported filter function: %s", fn)
	}
}

func (c *converter) convertBoolIdent(name string, want bool) error {
	column, err := c.column(name)
	if err != nil {
		return err
	}
	c.buf.WriteString(column + " = ")
	c.arg(want)
	return nil
}

func (c *converter) convertComparison(fn string, args []*exprv1.Expr) error {
	if len(args) != 2 {
		return errors.Errorf("%s expects 2 operands", comparisonOperators[fn])
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return errors.New("comparison left side must be an email attribute")
	}
	column, err := c.column(ident.GetName())
	if err != nil {
		return err
	}
	value, err := constValue(args[1])
	if err != nil {
		return err
	}
	c.buf.WriteString(column + " " + comparisonOperators[fn] + " ")
	c.arg(value)
	return nil
}

// convertMembership handles both list membership forms:
// `folder in ["a", "b"]` and `"label" in labels`.
func (c *converter) convertMembership(args []*exprv1.Expr) error {
	if len(args) != 2 {
		return errors.New("in expects 2 operands")
	}

	// `"receipts" in labels`: JSON array membership on the labels column.
	if ident := args[1].GetIdentExpr(); ident != nil {
		if ident.GetName() != "labels" {
			return errors.Errorf("in is only supported on labels, got %s", ident.GetName())
		}
		value, err := constValue(args[0])
		if err != nil {
			return err
		}
		return c.writeLabelMembership(value)
	}

	// `folder in ["promotions", "updates"]`: SQL IN over constants.
	ident := args[0].GetIdentExpr()
	list := args[1].GetListExpr()
	if ident == nil || list == nil {
		return errors.New("in expects an attribute and a constant list")
	}
	column, err := c.column(ident.GetName())
	if err != nil {
		return err
	}
	if len(list.GetElements()) == 0 {
		return errors.New("in list must not be empty")
	}
	c.buf.WriteString(column + " IN (")
	for i, element := range list.GetElements() {
		value, err := constValue(element)
		if err != nil {
			return err
		}
		if i > 0 {
			c.buf.WriteString(", ")
		}
		c.arg(value)
	}
	c.buf.WriteString(")")
	return nil
}

// writeLabelMembership emits the dialect-specific JSON array containment
// check for the labels column.
func (c *converter) writeLabelMembership(value any) error {
	label, ok := value.(string)
	if !ok {
		return errors.New("label membership expects a string")
	}
	switch c.dialect {
	case DialectPostgres:
		c.buf.WriteString("EXISTS (SELECT 1 FROM jsonb_array_elements_text(labels::jsonb) AS le WHERE le = ")
		c.arg(label)
		c.buf.WriteString(")")
	default:
		c.buf.WriteString("EXISTS (SELECT 1 FROM json_each(labels) WHERE json_each.value = ")
		c.arg(label)
		c.buf.WriteString(")")
	}
	return nil
}

func (c *converter) convertStringMatch(fn string, call *exprv1.Expr_Call) error {
	target := call.GetTarget()
	if target == nil || target.GetIdentExpr() == nil {
		return errors.Errorf("%s must be called on an email attribute", fn)
	}
	column, err := c.column(target.GetIdentExpr().GetName())
	if err != nil {
		return err
	}
	if len(call.Args) != 1 {
		return errors.Errorf("%s expects 1 argument", fn)
	}
	value, err := constValue(call.Args[0])
	if err != nil {
		return err
	}
	needle, ok := value.(string)
	if !ok {
		return errors.Errorf("%s expects a string argument", fn)
	}

	var pattern string
	switch fn {
	case "contains":
		pattern = "%" + escapeLike(needle) + "%"
	case "startsWith":
		pattern = escapeLike(needle) + "%"
	case "endsWith":
		pattern = "%" + escapeLike(needle)
	}
	c.buf.WriteString(column + " LIKE ")
	c.arg(pattern)
	c.buf.WriteString(" ESCAPE '\\'")
	return nil
}

func (c *converter) column(name string) (string, error) {
	column, ok := emailColumns[name]
	if !ok {
		return "", errors.Errorf("unknown email attribute: %s", name)
	}
	return column, nil
}

func constValue(expr *exprv1.Expr) (any, error) {
	constant := expr.GetConstExpr()
	if constant == nil {
		return nil, errors.New("expected a constant value")
	}
	switch kind := constant.GetConstantKind().(type) {
	case *exprv1.Constant_StringValue:
		return kind.StringValue, nil
	case *exprv1.Constant_Int64Value:
		return kind.Int64Value, nil
	case *exprv1.Constant_Uint64Value:
		return int64(kind.Uint64Value), nil
	case *exprv1.Constant_DoubleValue:
		return kind.DoubleValue, nil
	case *exprv1.Constant_BoolValue:
		return kind.BoolValue, nil
	default:
		return nil, errors.Errorf("unsupported constant kind: %T", kind)
	}
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
