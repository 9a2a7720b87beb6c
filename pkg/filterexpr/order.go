package filterexpr

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// OrderTerm is one resolved "key [asc|desc]" segment.
type OrderTerm struct {
	Key  string
	Desc bool
}

type orderParams struct {
	Primary   OrderTerm
	Secondary OrderTerm
}

// Column returns the whitelisted expression for key.
func (s OrderSchema) Column(key string) (OrderField, bool) {
	field, ok := s.Fields[key]
	if !ok {
		return OrderField{}, false
	}
	if field.Expr == "" {
		field.Expr = key
	}
	return field, true
}

func (s OrderSchema) validate() error {
	if s.DefaultPrimary == "" {
		return errors.New("order schema default primary key required")
	}
	if s.FallbackKey == "" {
		return errors.New("order schema fallback key required")
	}
	if _, ok := s.Fields[s.DefaultPrimary]; !ok {
		return fmt.Errorf("order key %q missing from schema fields", s.DefaultPrimary)
	}
	if _, ok := s.Fields[s.FallbackKey]; !ok {
		return fmt.Errorf("fallback order key %q missing from schema fields", s.FallbackKey)
	}
	return nil
}

func parseOrderBy(raw string, schema OrderSchema) (orderParams, error) {
	if err := schema.validate(); err != nil {
		return orderParams{}, err
	}

	terms := make([]OrderTerm, 0, 2)
	for _, seg := range strings.Split(raw, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		term, err := parseOrderSegment(seg, schema)
		if err != nil {
			return orderParams{}, err
		}
		for _, prev := range terms {
			if prev.Key == term.Key {
				return orderParams{}, fmt.Errorf("duplicate order key %q", term.Key)
			}
		}
		if len(terms) == 2 {
			return orderParams{}, errors.New("order_by supports at most two keys")
		}
		terms = append(terms, term)
	}

	ord := orderParams{
		Primary:   OrderTerm{Key: schema.DefaultPrimary, Desc: schema.DefaultPrimaryDesc},
		Secondary: OrderTerm{Key: schema.FallbackKey, Desc: schema.FallbackDesc},
	}
	if len(terms) > 0 {
		ord.Primary = terms[0]
	}
	if len(terms) > 1 {
		ord.Secondary = terms[1]
	}

	if ord.Secondary.Key == ord.Primary.Key {
		alt, ok := firstOtherKey(schema, ord.Primary.Key)
		if !ok {
			return orderParams{}, errors.New("order schema requires at least two distinct keys for stable ordering")
		}
		ord.Secondary = OrderTerm{Key: alt}
	}
	return ord, nil
}

func parseOrderSegment(seg string, schema OrderSchema) (OrderTerm, error) {
	parts := strings.Fields(seg)
	key := parts[0]
	if _, ok := schema.Fields[key]; !ok {
		return OrderTerm{}, fmt.Errorf("field %q cannot be used for ordering", key)
	}
	switch len(parts) {
	case 1:
		return OrderTerm{Key: key}, nil
	case 2:
		switch strings.ToLower(parts[1]) {
		case "asc":
			return OrderTerm{Key: key}, nil
		case "desc":
			return OrderTerm{Key: key, Desc: true}, nil
		default:
			return OrderTerm{}, fmt.Errorf("invalid direction %q for field %q", parts[1], key)
		}
	default:
		return OrderTerm{}, fmt.Errorf("invalid order segment %q", seg)
	}
}

// firstOtherKey picks the alphabetically first key that differs from key, so
// tie-breaking does not depend on map iteration order.
func firstOtherKey(schema OrderSchema, key string) (string, bool) {
	keys := make([]string, 0, len(schema.Fields))
	for k := range schema.Fields {
		if k != key {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return keys[0], true
}

func setOrderParams(binding any, ord orderParams) error {
	rv := reflect.ValueOf(binding)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("binding must be a non-nil pointer")
	}
	target := rv.Elem()
	if target.Kind() != reflect.Struct {
		return errors.New("binding must point to a struct")
	}

	fields := []struct {
		name  string
		value any
	}{
		{"PrimaryKey", ord.Primary.Key},
		{"PrimaryDesc", ord.Primary.Desc},
		{"SecondaryKey", ord.Secondary.Key},
		{"SecondaryDesc", ord.Secondary.Desc},
	}
	for _, f := range fields {
		if err := setAssignableField(target, f.name, reflect.ValueOf(f.value)); err != nil {
			return err
		}
	}
	return nil
}

func setAssignableField(target reflect.Value, name string, value reflect.Value) error {
	field := target.FieldByName(name)
	if !field.IsValid() {
		return fmt.Errorf("params struct %s has no field named %q", target.Type(), name)
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field %q on params struct", name)
	}

	switch field.Kind() {
	case reflect.Interface:
		field.Set(value)
		return nil
	case reflect.Ptr:
		elemType := field.Type().Elem()
		if !value.Type().ConvertibleTo(elemType) {
			return fmt.Errorf("field %q must be %s-compatible, got %s", name, elemType, value.Type())
		}
		if field.IsNil() {
			field.Set(reflect.New(elemType))
		}
		field.Elem().Set(value.Convert(elemType))
		return nil
	default:
		if !value.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("field %q must be %s-compatible, got %s", name, field.Type(), value.Type())
		}
		field.Set(value.Convert(field.Type()))
		return nil
	}
}
