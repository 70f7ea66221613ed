// Package ctypes models the C types seen by the scop extractor: integer
// widths and signedness, pointers, arrays and aggregates.
package ctypes

import (
	"fmt"
	"strings"
)

// Type is the interface for all C types
type Type interface {
	implType()
	String() string
}

// Signedness represents signed/unsigned for integer types
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// IntSize represents the size of integer types
type IntSize int

const (
	I8 IntSize = iota
	I16
	I32
	IBool
)

// FloatSize represents the size of floating-point types
type FloatSize int

const (
	F32 FloatSize = iota
	F64
)

// Tvoid represents the void type
type Tvoid struct{}

// Tint represents integer types (char, short, int, _Bool)
type Tint struct {
	Size IntSize
	Sign Signedness
}

// Tlong represents long and long long (64-bit)
type Tlong struct {
	Sign Signedness
}

// Tfloat represents floating-point types (float, double)
type Tfloat struct {
	Size FloatSize
}

// Tpointer represents pointer types
type Tpointer struct {
	Elem Type
}

// Tarray represents array types. Size is -1 when the extent is not a
// compile-time constant or is missing.
type Tarray struct {
	Elem Type
	Size int64
}

// Tfunction represents function types
type Tfunction struct {
	Params []Type
	Return Type
	VarArg bool
}

// Tstruct represents struct types
type Tstruct struct {
	Name   string
	Fields []Field
}

// Tunion represents union types
type Tunion struct {
	Name   string
	Fields []Field
}

// Field represents a struct or union field
type Field struct {
	Name string
	Type Type
}

func (Tvoid) implType()     {}
func (Tint) implType()      {}
func (Tlong) implType()     {}
func (Tfloat) implType()    {}
func (Tpointer) implType()  {}
func (Tarray) implType()    {}
func (Tfunction) implType() {}
func (Tstruct) implType()   {}
func (Tunion) implType()    {}

func (Tvoid) String() string { return "void" }

func (t Tint) String() string {
	sign := ""
	if t.Sign == Unsigned {
		sign = "unsigned "
	}
	switch t.Size {
	case I8:
		return sign + "char"
	case I16:
		return sign + "short"
	case IBool:
		return "_Bool"
	}
	return sign + "int"
}

func (t Tlong) String() string {
	if t.Sign == Unsigned {
		return "unsigned long"
	}
	return "long"
}

func (t Tfloat) String() string {
	if t.Size == F32 {
		return "float"
	}
	return "double"
}

func (t Tpointer) String() string {
	if t.Elem == nil {
		return "void *"
	}
	return t.Elem.String() + " *"
}

func (t Tarray) String() string {
	if t.Size < 0 {
		return t.Elem.String() + "[]"
	}
	return fmt.Sprintf("%s[%d]", t.Elem, t.Size)
}

func (t Tfunction) String() string { return "function" }

func (t Tstruct) String() string {
	if t.Name == "" {
		return "struct <anonymous>"
	}
	return "struct " + t.Name
}

func (t Tunion) String() string {
	if t.Name == "" {
		return "union <anonymous>"
	}
	return "union " + t.Name
}

// Int returns a signed 32-bit int type
func Int() Type { return Tint{Size: I32, Sign: Signed} }

// UInt returns an unsigned 32-bit int type
func UInt() Type { return Tint{Size: I32, Sign: Unsigned} }

// Char returns a signed char type
func Char() Type { return Tint{Size: I8, Sign: Signed} }

// UChar returns an unsigned char type
func UChar() Type { return Tint{Size: I8, Sign: Unsigned} }

// Short returns a signed short type
func Short() Type { return Tint{Size: I16, Sign: Signed} }

// Long returns a signed long type
func Long() Type { return Tlong{Sign: Signed} }

// ULong returns an unsigned long type
func ULong() Type { return Tlong{Sign: Unsigned} }

// Float returns a float (32-bit) type
func Float() Type { return Tfloat{Size: F32} }

// Double returns a double (64-bit) type
func Double() Type { return Tfloat{Size: F64} }

// Void returns the void type
func Void() Type { return Tvoid{} }

// Pointer returns a pointer to the given type
func Pointer(elem Type) Type { return Tpointer{Elem: elem} }

// Array returns an array type
func Array(elem Type, size int64) Type { return Tarray{Elem: elem, Size: size} }

// IsInteger reports whether t is an integer type.
func IsInteger(t Type) bool {
	switch t.(type) {
	case Tint, Tlong:
		return true
	}
	return false
}

// IsFloat reports whether t is a floating-point type.
func IsFloat(t Type) bool {
	_, ok := t.(Tfloat)
	return ok
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(Tpointer)
	return ok
}

// IsArray reports whether t is an array type.
func IsArray(t Type) bool {
	_, ok := t.(Tarray)
	return ok
}

// IsSigned reports whether t is a signed integer type.
func IsSigned(t Type) bool {
	switch t := t.(type) {
	case Tint:
		return t.Sign == Signed && t.Size != IBool
	case Tlong:
		return t.Sign == Signed
	}
	return false
}

// Width returns the width in bits of an integer type, or 0 for other
// types.
func Width(t Type) int {
	switch t := t.(type) {
	case Tint:
		switch t.Size {
		case I8:
			return 8
		case I16:
			return 16
		case IBool:
			return 1
		}
		return 32
	case Tlong:
		return 64
	}
	return 0
}

// SizeOf returns the size in bytes of t on an LP64 target, or 0 if the
// size is unknown.
func SizeOf(t Type) int64 {
	switch t := t.(type) {
	case Tint:
		if t.Size == IBool {
			return 1
		}
		return int64(Width(t) / 8)
	case Tlong:
		return 8
	case Tfloat:
		if t.Size == F32 {
			return 4
		}
		return 8
	case Tpointer:
		return 8
	case Tarray:
		if t.Size < 0 {
			return 0
		}
		return t.Size * SizeOf(t.Elem)
	case Tstruct:
		var size, align int64 = 0, 1
		for _, f := range t.Fields {
			fs, fa := SizeOf(f.Type), alignOf(f.Type)
			size = (size + fa - 1) / fa * fa
			size += fs
			if fa > align {
				align = fa
			}
		}
		return (size + align - 1) / align * align
	case Tunion:
		var size int64
		for _, f := range t.Fields {
			if fs := SizeOf(f.Type); fs > size {
				size = fs
			}
		}
		return size
	}
	return 0
}

func alignOf(t Type) int64 {
	switch t := t.(type) {
	case Tarray:
		return alignOf(t.Elem)
	case Tstruct, Tunion:
		var a int64 = 1
		var fields []Field
		if s, ok := t.(Tstruct); ok {
			fields = s.Fields
		} else {
			fields = t.(Tunion).Fields
		}
		for _, f := range fields {
			if fa := alignOf(f.Type); fa > a {
				a = fa
			}
		}
		return a
	}
	if s := SizeOf(t); s > 0 {
		return s
	}
	return 1
}

// ArrayDepth returns the number of array and pointer levels of t.
func ArrayDepth(t Type) int {
	depth := 0
	for {
		switch tt := t.(type) {
		case Tarray:
			t = tt.Elem
		case Tpointer:
			t = tt.Elem
		default:
			return depth
		}
		depth++
	}
}

// BaseType strips all array and pointer levels from t.
func BaseType(t Type) Type {
	for {
		switch tt := t.(type) {
		case Tarray:
			t = tt.Elem
		case Tpointer:
			t = tt.Elem
		default:
			return t
		}
	}
}

// Elem returns the element type of an array or pointer type.
func Elem(t Type) (Type, bool) {
	switch tt := t.(type) {
	case Tarray:
		return tt.Elem, true
	case Tpointer:
		return tt.Elem, true
	}
	return nil, false
}

// FieldType looks up a member of a struct or union type.
func FieldType(t Type, name string) (Type, bool) {
	var fields []Field
	switch tt := t.(type) {
	case Tstruct:
		fields = tt.Fields
	case Tunion:
		fields = tt.Fields
	default:
		return nil, false
	}
	for _, f := range fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Equal checks if two types are equal
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch ta := a.(type) {
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta.Size == tb.Size && ta.Sign == tb.Sign
	case Tlong:
		tb, ok := b.(Tlong)
		return ok && ta.Sign == tb.Sign
	case Tfloat:
		tb, ok := b.(Tfloat)
		return ok && ta.Size == tb.Size
	case Tpointer:
		tb, ok := b.(Tpointer)
		return ok && Equal(ta.Elem, tb.Elem)
	case Tarray:
		tb, ok := b.(Tarray)
		return ok && ta.Size == tb.Size && Equal(ta.Elem, tb.Elem)
	case Tstruct:
		tb, ok := b.(Tstruct)
		return ok && ta.Name == tb.Name
	case Tunion:
		tb, ok := b.(Tunion)
		return ok && ta.Name == tb.Name
	case Tfunction:
		tb, ok := b.(Tfunction)
		return ok && ta.VarArg == tb.VarArg && len(ta.Params) == len(tb.Params)
	}
	return false
}

// Env resolves the names a type specifier may refer to.
type Env interface {
	Typedef(name string) (Type, bool)
	Struct(name string) (Type, bool)
}

var qualifiers = map[string]bool{
	"const": true, "volatile": true, "restrict": true, "__restrict": true,
	"__restrict__": true, "static": true, "extern": true, "register": true,
	"auto": true, "inline": true, "__inline": true, "__inline__": true,
}

// Parse converts a type specifier as written in a declaration, such as
// "unsigned int", "const float *" or "struct point", into a Type.
func Parse(spec string, env Env) (Type, error) {
	stars := strings.Count(spec, "*")
	words := strings.Fields(strings.ReplaceAll(spec, "*", " "))
	var (
		signed, unsigned bool
		longs            int
		base             string
		t                Type
	)
	for i := 0; i < len(words); i++ {
		w := words[i]
		switch {
		case qualifiers[w]:
		case w == "signed":
			signed = true
		case w == "unsigned":
			unsigned = true
		case w == "long":
			longs++
		case w == "short" || w == "char" || w == "int" || w == "float" ||
			w == "double" || w == "void" || w == "_Bool":
			if base != "" && base != "int" && w != "int" {
				return nil, fmt.Errorf("invalid type specifier %q", spec)
			}
			if base == "" || w != "int" {
				base = w
			}
		case w == "struct" || w == "union" || w == "enum":
			if i+1 >= len(words) {
				return nil, fmt.Errorf("missing tag in %q", spec)
			}
			i++
			tag := words[i]
			switch w {
			case "enum":
				t = Int()
			default:
				if env != nil {
					if st, ok := env.Struct(w + " " + tag); ok {
						t = st
						break
					}
				}
				if w == "struct" {
					t = Tstruct{Name: tag}
				} else {
					t = Tunion{Name: tag}
				}
			}
		default:
			if env == nil {
				return nil, fmt.Errorf("unknown type name %q", w)
			}
			td, ok := env.Typedef(w)
			if !ok {
				return nil, fmt.Errorf("unknown type name %q", w)
			}
			t = td
		}
	}
	if t == nil {
		sign := Signed
		if unsigned {
			sign = Unsigned
		}
		switch {
		case base == "float":
			t = Float()
		case base == "double":
			t = Double()
		case base == "void":
			t = Void()
		case base == "_Bool":
			t = Tint{Size: IBool, Sign: Unsigned}
		case longs > 0:
			t = Tlong{Sign: sign}
		case base == "char":
			t = Tint{Size: I8, Sign: sign}
		case base == "short":
			t = Tint{Size: I16, Sign: sign}
		case base == "int" || signed || unsigned:
			t = Tint{Size: I32, Sign: sign}
		default:
			return nil, fmt.Errorf("missing type specifier in %q", spec)
		}
	}
	for ; stars > 0; stars-- {
		t = Pointer(t)
	}
	return t, nil
}

// IntLiteral returns the type of an integer constant with the given
// suffix and value, following the C rules for decimal constants when
// decimal is set and for octal or hexadecimal constants otherwise.
func IntLiteral(suffix string, value uint64, decimal bool) Type {
	s := strings.ToLower(suffix)
	unsigned := strings.Contains(s, "u")
	long := strings.Contains(s, "l")
	switch {
	case !long && !unsigned && value <= 1<<31-1:
		return Int()
	case !long && !unsigned && !decimal && value <= 1<<32-1:
		return UInt()
	case !long && unsigned && value <= 1<<32-1:
		return UInt()
	case !unsigned && value <= 1<<63-1:
		return Long()
	}
	return ULong()
}

// Arith returns the type of a binary arithmetic operation on a and b after
// the usual arithmetic conversions.
func Arith(a, b Type) Type {
	if IsFloat(a) || IsFloat(b) {
		if Equal(a, Float()) && Equal(b, Float()) {
			return Float()
		}
		return Double()
	}
	a, b = Promote(a), Promote(b)
	wa, wb := Width(a), Width(b)
	switch {
	case wa > wb:
		return a
	case wb > wa:
		return b
	case !IsSigned(a):
		return a
	}
	return b
}

// Promote applies the integer promotions to t.
func Promote(t Type) Type {
	if IsInteger(t) && Width(t) < 32 {
		return Int()
	}
	return t
}
