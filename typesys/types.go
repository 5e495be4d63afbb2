// Package typesys implements the engine's closed-sum type system: a set of
// declarative type descriptors that validate and coerce values at
// property set/get boundaries and serialize them to/from a primitive form
// any backend can store.
//
// Grounded on the teacher's store/reflect.go (typed extraction of struct
// fields for indexing) generalized into a standalone validate/serialize/
// deserialize triad, and on the original Python source's Types static
// factories (storage/__init__.py) for the closed sum itself.
package typesys

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/guyvdb/objectengine/storeerr"
)

// Kind identifies which member of the closed sum a Descriptor is.
type Kind int

const (
	Bool Kind = iota
	Integer
	Positive
	Float
	Number
	String
	Line
	Email
	Password
	URL
	HTML
	Markdown
	RichText
	Date
	Time
	DateTime
	Binary
	Any
	List
	Tuple
	OneOf
	Map
	Enum
	Reference
	Range
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Integer:
		return "integer"
	case Positive:
		return "positive"
	case Float:
		return "float"
	case Number:
		return "number"
	case String:
		return "string"
	case Line:
		return "line"
	case Email:
		return "email"
	case Password:
		return "password"
	case URL:
		return "url"
	case HTML:
		return "html"
	case Markdown:
		return "markdown"
	case RichText:
		return "richtext"
	case Date:
		return "date"
	case Time:
		return "time"
	case DateTime:
		return "datetime"
	case Binary:
		return "binary"
	case Any:
		return "any"
	case List:
		return "list"
	case Tuple:
		return "tuple"
	case OneOf:
		return "oneof"
	case Map:
		return "map"
	case Enum:
		return "enum"
	case Reference:
		return "reference"
	case Range:
		return "range"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Descriptor describes one member of the type system's closed sum. Only
// the fields relevant to Kind are populated; the zero value of the rest
// is ignored.
type Descriptor struct {
	Kind Kind

	Elem      *Descriptor            // List, Range's element type
	Elems     []*Descriptor          // Tuple, OneOf
	Fields    map[string]*Descriptor // Map
	Labels    []string               // Enum
	Class     string                 // Reference
	RangeLo   float64                // Range
	RangeHi   float64                // Range
	HasBounds bool
}

// Ref is the validated/serialized shape of a Reference value: a pointer
// to another stored object, identified by class name and OID. Existence
// of the target is never checked here — see spec §4.1.
type Ref struct {
	Class string
	OID   string
}

// IsSubclassOf is consulted by Reference validation to decide whether a
// value's class satisfies a descriptor declared against a different
// class name. Left nil, references must target their declared class
// exactly; an application that introduces class hierarchies can set this
// hook to relax that check.
var IsSubclassOf func(got, want string) bool

func isAcceptableClass(got, want string) bool {
	if got == want {
		return true
	}
	if IsSubclassOf != nil {
		return IsSubclassOf(got, want)
	}
	return false
}

// -- constructors -----------------------------------------------------------

func TBool() *Descriptor     { return &Descriptor{Kind: Bool} }
func TInteger() *Descriptor  { return &Descriptor{Kind: Integer} }
func TPositive() *Descriptor { return &Descriptor{Kind: Positive} }
func TFloat() *Descriptor    { return &Descriptor{Kind: Float} }
func TNumber() *Descriptor   { return &Descriptor{Kind: Number} }
func TString() *Descriptor   { return &Descriptor{Kind: String} }
func TLine() *Descriptor     { return &Descriptor{Kind: Line} }
func TEmail() *Descriptor    { return &Descriptor{Kind: Email} }
func TPassword() *Descriptor { return &Descriptor{Kind: Password} }
func TURL() *Descriptor      { return &Descriptor{Kind: URL} }
func THTML() *Descriptor     { return &Descriptor{Kind: HTML} }
func TMarkdown() *Descriptor { return &Descriptor{Kind: Markdown} }
func TRichText() *Descriptor { return &Descriptor{Kind: RichText} }
func TDate() *Descriptor     { return &Descriptor{Kind: Date} }
func TTime() *Descriptor     { return &Descriptor{Kind: Time} }
func TDateTime() *Descriptor { return &Descriptor{Kind: DateTime} }
func TBinary() *Descriptor   { return &Descriptor{Kind: Binary} }
func TAny() *Descriptor      { return &Descriptor{Kind: Any} }

func TList(elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: List, Elem: elem}
}

func TTuple(elems ...*Descriptor) *Descriptor {
	return &Descriptor{Kind: Tuple, Elems: elems}
}

func TOneOf(elems ...*Descriptor) *Descriptor {
	return &Descriptor{Kind: OneOf, Elems: elems}
}

func TMap(fields map[string]*Descriptor) *Descriptor {
	return &Descriptor{Kind: Map, Fields: fields}
}

func TEnum(labels ...string) *Descriptor {
	return &Descriptor{Kind: Enum, Labels: labels}
}

func TReference(class string) *Descriptor {
	return &Descriptor{Kind: Reference, Class: class}
}

func TRange(lo, hi float64, elem *Descriptor) *Descriptor {
	return &Descriptor{Kind: Range, RangeLo: lo, RangeHi: hi, Elem: elem, HasBounds: true}
}

// -- validate ----------------------------------------------------------------

// Validate coerces/canonicalizes value, or fails with *storeerr.InvalidValue.
// path is used only to build error messages and may be empty.
func (d *Descriptor) Validate(path string, value any) (any, error) {
	switch d.Kind {
	case Bool:
		v, ok := value.(bool)
		if !ok {
			return nil, invalid(path, "expected bool, got %T", value)
		}
		return v, nil

	case Integer:
		return validateInt(path, value, false)

	case Positive:
		n, err := validateInt(path, value, false)
		if err != nil {
			return nil, err
		}
		if n.(int64) <= 0 {
			return nil, invalid(path, "expected a positive integer, got %v", n)
		}
		return n, nil

	case Float, Number:
		return validateFloat(path, value)

	case String, Password, HTML, Markdown, RichText:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(path, "expected string, got %T", value)
		}
		return s, nil

	case Line:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(path, "expected string, got %T", value)
		}
		if strings.ContainsAny(s, "\r\n") {
			return nil, invalid(path, "line value must not contain newlines")
		}
		return s, nil

	case Email:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(path, "expected string, got %T", value)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return nil, invalid(path, "not a valid email address: %v", err)
		}
		return s, nil

	case URL:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(path, "expected string, got %T", value)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			return nil, invalid(path, "not a valid url")
		}
		return s, nil

	case Date, Time, DateTime:
		return validateTemporal(path, d.Kind, value)

	case Binary:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return nil, invalid(path, "expected []byte, got %T", value)
		}

	case Any:
		if err := checkJSONPrimitive(path, value); err != nil {
			return nil, err
		}
		return value, nil

	case List:
		return d.validateList(path, value)

	case Tuple:
		return d.validateTuple(path, value)

	case OneOf:
		return d.validateOneOf(path, value)

	case Map:
		return d.validateMap(path, value)

	case Enum:
		s, ok := value.(string)
		if !ok {
			return nil, invalid(path, "expected string, got %T", value)
		}
		for _, label := range d.Labels {
			if s == label { // case-sensitive by design, spec §4.1
				return s, nil
			}
		}
		return nil, invalid(path, "%q is not one of %v", s, d.Labels)

	case Reference:
		return d.validateReference(path, value)

	case Range:
		return d.validateRange(path, value)

	default:
		return nil, invalid(path, "unknown kind %v", d.Kind)
	}
}

func (d *Descriptor) validateList(path string, value any) (any, error) {
	items, ok := toSlice(value)
	if !ok {
		return nil, invalid(path, "expected a list, got %T", value)
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := d.Elem.Validate(fmt.Sprintf("%s[%d]", path, i), item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *Descriptor) validateTuple(path string, value any) (any, error) {
	items, ok := toSlice(value)
	if !ok || len(items) != len(d.Elems) {
		return nil, invalid(path, "expected a tuple of length %d, got %v", len(d.Elems), value)
	}
	out := make([]any, len(items))
	for i, elemType := range d.Elems {
		v, err := elemType.Validate(fmt.Sprintf("%s[%d]", path, i), items[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *Descriptor) validateOneOf(path string, value any) (any, error) {
	var errs []string
	for _, alt := range d.Elems {
		v, err := alt.Validate(path, value)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err.Error())
	}
	return nil, invalid(path, "matched none of the alternatives: %s", strings.Join(errs, "; "))
}

func (d *Descriptor) validateMap(path string, value any) (any, error) {
	m, ok := toStringMap(value)
	if !ok {
		return nil, invalid(path, "expected a map, got %T", value)
	}
	out := make(map[string]any, len(d.Fields))
	for name, fieldType := range d.Fields {
		fv, present := m[name]
		if !present {
			continue
		}
		v, err := fieldType.Validate(path+"."+name, fv)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (d *Descriptor) validateReference(path string, value any) (any, error) {
	switch v := value.(type) {
	case Ref:
		if !isAcceptableClass(v.Class, d.Class) {
			return nil, invalid(path, "reference must target class %s (or subclass), got %s", d.Class, v.Class)
		}
		return v, nil
	case map[string]any:
		class, _ := v["type"].(string)
		oid, _ := v["oid"].(string)
		if class == "" || oid == "" {
			return nil, invalid(path, "reference must have non-empty type and oid")
		}
		if !isAcceptableClass(class, d.Class) {
			return nil, invalid(path, "reference must target class %s (or subclass), got %s", d.Class, class)
		}
		return Ref{Class: class, OID: oid}, nil
	default:
		return nil, invalid(path, "expected a reference, got %T", value)
	}
}

func (d *Descriptor) validateRange(path string, value any) (any, error) {
	n, err := validateFloat(path, value)
	if err != nil {
		return nil, err
	}
	f := n.(float64)
	if f < d.RangeLo || f > d.RangeHi {
		return nil, invalid(path, "%v is out of range [%v, %v]", f, d.RangeLo, d.RangeHi)
	}
	if d.Elem != nil && (d.Elem.Kind == Integer || d.Elem.Kind == Positive) {
		return int64(f), nil
	}
	return f, nil
}

// -- serialize / deserialize --------------------------------------------------

// Serialize produces a primitive tree (strings, float64, int64, bool,
// []any, map[string]any, []byte) suitable for any backend's native value form.
func (d *Descriptor) Serialize(value any) (any, error) {
	switch d.Kind {
	case Date, Time, DateTime:
		t, ok := value.(time.Time)
		if !ok {
			return nil, invalid("", "expected time.Time, got %T", value)
		}
		return t.UTC().Format(layoutFor(d.Kind)), nil

	case List:
		items, _ := toSlice(value)
		out := make([]any, len(items))
		for i, item := range items {
			v, err := d.Elem.Serialize(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case Tuple:
		items, _ := toSlice(value)
		out := make([]any, len(items))
		for i, elemType := range d.Elems {
			v, err := elemType.Serialize(items[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case Map:
		m, _ := toStringMap(value)
		out := make(map[string]any, len(m))
		for name, fieldType := range d.Fields {
			if fv, present := m[name]; present {
				v, err := fieldType.Serialize(fv)
				if err != nil {
					return nil, err
				}
				out[name] = v
			}
		}
		return out, nil

	case Reference:
		ref, ok := value.(Ref)
		if !ok {
			return nil, invalid("", "expected Ref, got %T", value)
		}
		return map[string]any{"type": ref.Class, "oid": ref.OID}, nil

	case Integer, Positive:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		default:
			return nil, invalid("", "expected integer, got %T", value)
		}

	case Range:
		if d.Elem != nil && (d.Elem.Kind == Integer || d.Elem.Kind == Positive) {
			if n, ok := value.(int64); ok {
				return n, nil
			}
		}
		return value, nil

	default:
		return value, nil
	}
}

// Deserialize is the inverse of Serialize; round-tripping a validated
// value must be identity.
func (d *Descriptor) Deserialize(primitive any) (any, error) {
	switch d.Kind {
	case Date, Time, DateTime:
		s, ok := primitive.(string)
		if !ok {
			return nil, invalid("", "expected string timestamp, got %T", primitive)
		}
		t, err := time.Parse(layoutFor(d.Kind), s)
		if err != nil {
			return nil, invalid("", "malformed timestamp: %v", err)
		}
		return t, nil

	case List:
		items, ok := toSlice(primitive)
		if !ok {
			return nil, invalid("", "expected a list, got %T", primitive)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := d.Elem.Deserialize(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case Tuple:
		items, ok := toSlice(primitive)
		if !ok {
			return nil, invalid("", "expected a tuple, got %T", primitive)
		}
		out := make([]any, len(items))
		for i, elemType := range d.Elems {
			v, err := elemType.Deserialize(items[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case Map:
		m, ok := toStringMap(primitive)
		if !ok {
			return nil, invalid("", "expected a map, got %T", primitive)
		}
		out := make(map[string]any, len(m))
		for name, fieldType := range d.Fields {
			if fv, present := m[name]; present {
				v, err := fieldType.Deserialize(fv)
				if err != nil {
					return nil, err
				}
				out[name] = v
			}
		}
		return out, nil

	case Reference:
		m, ok := toStringMap(primitive)
		if !ok {
			return nil, invalid("", "expected a reference map, got %T", primitive)
		}
		class, _ := m["type"].(string)
		oidv, _ := m["oid"].(string)
		return Ref{Class: class, OID: oidv}, nil

	case Integer, Positive:
		switch v := primitive.(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case int:
			return int64(v), nil
		default:
			return nil, invalid("", "expected integer, got %T", primitive)
		}

	case Range:
		if d.Elem != nil && (d.Elem.Kind == Integer || d.Elem.Kind == Positive) {
			switch v := primitive.(type) {
			case int64:
				return v, nil
			case float64:
				return int64(v), nil
			}
		}
		return primitive, nil

	default:
		return primitive, nil
	}
}

func layoutFor(k Kind) string {
	switch k {
	case Date:
		return "2006-01-02"
	case Time:
		return "15:04:05"
	default:
		return time.RFC3339Nano
	}
}

// -- helpers ------------------------------------------------------------------

func invalid(path string, format string, args ...any) error {
	return storeerr.NewInvalidValue(path, fmt.Sprintf(format, args...))
}

func validateInt(path string, value any, allowFloat bool) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, invalid(path, "expected an integer, got %v", v)
		}
		return int64(v), nil
	default:
		return nil, invalid(path, "expected an integer, got %T", value)
	}
}

func validateFloat(path string, value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return nil, invalid(path, "expected a number, got %T", value)
	}
}

func validateTemporal(path string, k Kind, value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		// Canonicalize to what Serialize keeps (UTC, and only the date or
		// time-of-day part for Date and Time) so Deserialize round-trips.
		t, err := time.Parse(layoutFor(k), v.UTC().Format(layoutFor(k)))
		if err != nil {
			return nil, invalid(path, "malformed %s: %v", k, err)
		}
		return t, nil
	case string:
		t, err := time.Parse(layoutFor(k), v)
		if err != nil {
			return nil, invalid(path, "malformed %s: %v", k, err)
		}
		return t, nil
	default:
		return nil, invalid(path, "expected a %s, got %T", k, value)
	}
}

func checkJSONPrimitive(path string, value any) error {
	switch v := value.(type) {
	case nil, bool, string, float64, int, int64:
		return nil
	case []any:
		for i, item := range v {
			if err := checkJSONPrimitive(fmt.Sprintf("%s[%d]", path, i), item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for k, item := range v {
			if err := checkJSONPrimitive(path+"."+k, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return invalid(path, "not a JSON-primitive value: %T", value)
	}
}

func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

func toStringMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case nil:
		return map[string]any{}, true
	default:
		return nil, false
	}
}
