// Package filterexpr turns a CEL filter and an order_by clause into a typed
// query params struct.
//
// Only conjunctions of simple predicates are accepted: a field identifier on
// the left, a literal on the right. Each allowed (field, op) pair names the
// params struct field that receives the literal.
package filterexpr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Msg is anything carrying raw filter and order_by inputs.
type Msg interface {
	GetFilter() string
	GetOrderBy() string
}

// ValueKind is the literal type a field accepts.
type ValueKind string

const (
	KindString    ValueKind = "string"
	KindNumber    ValueKind = "number"
	KindBool      ValueKind = "bool"
	KindTimestamp ValueKind = "timestamp"
)

// Op is a comparison allowed in a filter.
type Op string

const (
	OpEQ  Op = "=="
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpSW  Op = "startsWith"
	OpIN  Op = "in"
)

// celOps maps CEL overload names of two-operand calls to filter ops.
var celOps = map[string]Op{
	"_==_": OpEQ,
	"_<_":  OpLT,
	"_<=_": OpLTE,
	"_>_":  OpGT,
	"_>=_": OpGTE,
	"@in":  OpIN,
}

// FilterField declares a filterable field. Ops maps each allowed operator to
// the params struct field it fills.
type FilterField struct {
	Kind ValueKind
	Ops  map[Op]string
}

// OrderField maps an order key to a column expression.
type OrderField struct {
	Expr  string
	Nulls string
}

// OrderSchema lists sortable keys and the default ordering.
type OrderSchema struct {
	DefaultPrimary     string
	DefaultPrimaryDesc bool
	FallbackKey        string
	FallbackDesc       bool
	Fields             map[string]OrderField
}

// ResourceSchema is the filtering and ordering contract of one listing.
type ResourceSchema struct {
	Filter map[string]FilterField
	Order  OrderSchema
}

type predicate struct {
	field string
	op    Op
	value any
}

var timeType = reflect.TypeOf(time.Time{})

// Bind parses msg's filter and order_by into params.
func Bind[M Msg, P any](msg M, params *P, schema ResourceSchema) error {
	if params == nil {
		return errors.New("params must not be nil")
	}
	dest := reflect.ValueOf(params).Elem()
	if dest.Kind() != reflect.Struct {
		return errors.New("params must point to a struct")
	}

	preds, err := parseFilter(msg.GetFilter(), schema.Filter)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	for _, p := range preds {
		if err := apply(dest, p, schema.Filter[p.field]); err != nil {
			return fmt.Errorf("filter: %w", err)
		}
	}

	order, err := parseOrderBy(msg.GetOrderBy(), schema.Order)
	if err != nil {
		return fmt.Errorf("order_by: %w", err)
	}
	return setOrderParams(params, order)
}

func parseFilter(filter string, fields map[string]FilterField) ([]predicate, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	if len(fields) == 0 {
		return nil, errors.New("no filterable fields")
	}

	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for name, f := range fields {
		t, err := celType(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		opts = append(opts, cel.Variable(name, t))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Parse(filter)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid filter: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("convert ast: %w", err)
	}

	var conjuncts []*exprpb.Expr
	if err := flattenAnd(parsed.GetExpr(), &conjuncts); err != nil {
		return nil, err
	}

	preds := make([]predicate, 0, len(conjuncts))
	for _, expr := range conjuncts {
		p, err := parsePredicate(expr)
		if err != nil {
			return nil, err
		}
		rule, ok := fields[p.field]
		if !ok {
			return nil, fmt.Errorf("field %q is not allowed", p.field)
		}
		if _, ok := rule.Ops[p.op]; !ok {
			return nil, fmt.Errorf("operator %q is not allowed for field %q", string(p.op), p.field)
		}
		if err := checkLiteral(rule.Kind, p.op, p.value); err != nil {
			return nil, fmt.Errorf("field %q: %w", p.field, err)
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func celType(kind ValueKind) (*cel.Type, error) {
	switch kind {
	case KindString:
		return cel.StringType, nil
	case KindNumber:
		return cel.DoubleType, nil
	case KindBool:
		return cel.BoolType, nil
	case KindTimestamp:
		return cel.TimestampType, nil
	}
	return nil, fmt.Errorf("unsupported field kind %s", kind)
}

// flattenAnd collects the operands of nested && chains. Other logical
// operators are rejected.
func flattenAnd(expr *exprpb.Expr, out *[]*exprpb.Expr) error {
	if expr == nil {
		return errors.New("empty expression")
	}
	call := expr.GetCallExpr()
	if call == nil {
		*out = append(*out, expr)
		return nil
	}
	switch call.Function {
	case "_&&_":
		for _, arg := range call.Args {
			if err := flattenAnd(arg, out); err != nil {
				return err
			}
		}
		return nil
	case "_||_", "_?_:_", "!_", "_!=_":
		return fmt.Errorf("operator %q is not supported; only && of simple comparisons is allowed", call.Function)
	}
	*out = append(*out, expr)
	return nil
}

func parsePredicate(expr *exprpb.Expr) (predicate, error) {
	call := expr.GetCallExpr()
	if call == nil {
		return predicate{}, errors.New("expected a comparison or startsWith call")
	}

	var identExpr, litExpr *exprpb.Expr
	op, binary := celOps[call.Function]
	switch {
	case binary:
		if call.Target != nil || len(call.Args) != 2 {
			return predicate{}, fmt.Errorf("operator %q expects two operands", string(op))
		}
		identExpr, litExpr = call.Args[0], call.Args[1]
	case call.Function == "startsWith":
		if call.Target == nil || len(call.Args) != 1 {
			return predicate{}, errors.New("startsWith must be called on a field with one argument")
		}
		op = OpSW
		identExpr, litExpr = call.Target, call.Args[0]
	default:
		return predicate{}, fmt.Errorf("function %q is not supported", call.Function)
	}

	ident := identExpr.GetIdentExpr()
	if ident == nil {
		return predicate{}, errors.New("left-hand side must be a field name")
	}
	value, err := literal(litExpr)
	if err != nil {
		return predicate{}, err
	}
	return predicate{field: ident.GetName(), op: op, value: value}, nil
}

// literal evaluates a constant, a list of string constants or a
// timestamp("...") call. Numbers come back as float64.
func literal(expr *exprpb.Expr) (any, error) {
	if c := expr.GetConstExpr(); c != nil {
		switch v := c.ConstantKind.(type) {
		case *exprpb.Constant_StringValue:
			return v.StringValue, nil
		case *exprpb.Constant_BoolValue:
			return v.BoolValue, nil
		case *exprpb.Constant_Int64Value:
			return float64(v.Int64Value), nil
		case *exprpb.Constant_DoubleValue:
			return v.DoubleValue, nil
		}
		return nil, fmt.Errorf("literal type %T is not supported", c.ConstantKind)
	}

	if list := expr.GetListExpr(); list != nil {
		values := make([]string, 0, len(list.GetElements()))
		for i, elem := range list.GetElements() {
			s := elem.GetConstExpr().GetStringValue()
			if _, ok := elem.GetConstExpr().GetConstantKind().(*exprpb.Constant_StringValue); !ok {
				return nil, fmt.Errorf("list element %d must be a string literal", i)
			}
			values = append(values, s)
		}
		return values, nil
	}

	if call := expr.GetCallExpr(); call != nil && call.Function == "timestamp" && call.Target == nil && len(call.Args) == 1 {
		raw := call.Args[0].GetConstExpr().GetStringValue()
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("timestamp literal %q is not RFC3339", raw)
		}
		return t.UTC(), nil
	}

	return nil, errors.New("right-hand side must be a literal, a list of strings or timestamp(\"...\")")
}

func checkLiteral(kind ValueKind, op Op, value any) error {
	ok := false
	switch kind {
	case KindString:
		if op != OpIN {
			_, ok = value.(string)
			break
		}
		list, isList := value.([]string)
		if !isList {
			return errors.New("expected a list of strings")
		}
		if len(list) == 0 {
			return errors.New("list must not be empty")
		}
		for _, item := range list {
			if item == "" {
				return errors.New("list must not contain empty strings")
			}
		}
		return nil
	case KindNumber:
		_, ok = value.(float64)
	case KindBool:
		_, ok = value.(bool)
	case KindTimestamp:
		_, ok = value.(time.Time)
	default:
		return fmt.Errorf("unsupported field kind %s", kind)
	}
	if !ok {
		return fmt.Errorf("expected %s literal, got %T", kind, value)
	}
	return nil
}

func apply(dest reflect.Value, p predicate, rule FilterField) error {
	name := rule.Ops[p.op]
	field := dest.FieldByName(name)
	if !field.IsValid() || !field.CanSet() {
		return fmt.Errorf("params struct %s has no settable field %q", dest.Type(), name)
	}
	if err := assign(field, p.value); err != nil {
		return fmt.Errorf("assign %q: %w", name, err)
	}
	return nil
}

// assign stores value in field, allocating pointer fields as needed.
func assign(field reflect.Value, value any) error {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return assign(field.Elem(), value)
	}

	switch v := value.(type) {
	case float64:
		return assignNumber(field, v)
	case []string:
		if field.Type() != reflect.TypeOf([]string(nil)) {
			return fmt.Errorf("cannot put []string into %s", field.Type())
		}
		field.Set(reflect.ValueOf(append([]string(nil), v...)))
		return nil
	case time.Time:
		if field.Type() != timeType {
			return fmt.Errorf("cannot put time.Time into %s", field.Type())
		}
	}

	rv := reflect.ValueOf(value)
	if !rv.Type().AssignableTo(field.Type()) {
		if rv.Type().ConvertibleTo(field.Type()) && rv.Kind() == field.Kind() {
			field.Set(rv.Convert(field.Type()))
			return nil
		}
		return fmt.Errorf("cannot put %T into %s", value, field.Type())
	}
	field.Set(rv)
	return nil
}

func assignNumber(field reflect.Value, v float64) error {
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		field.SetFloat(v)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if math.Trunc(v) != v {
			return fmt.Errorf("%v is not an integer", v)
		}
		if v >= math.MaxInt64 || v < math.MinInt64 || field.OverflowInt(int64(v)) {
			return fmt.Errorf("%v overflows %s", v, field.Type())
		}
		field.SetInt(int64(v))
		return nil
	}
	return fmt.Errorf("cannot put a number into %s", field.Kind())
}
