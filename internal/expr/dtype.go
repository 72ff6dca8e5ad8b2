// Package expr provides the expression-tree model consumed by the kernel
// generators: statements made of typed operation nodes whose operands are
// device handles, literals or references to other nodes.
package expr

// DataType represents the numeric type of an operand.
type DataType int

// Supported data types for operands.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Uint32
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32, Uint32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint32:
		return "uint32"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the type is one of the floating-point types.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// ParseDataType maps a name produced by String back to its DataType.
func ParseDataType(name string) (DataType, bool) {
	switch name {
	case "float32", "float":
		return Float32, true
	case "float64", "double":
		return Float64, true
	case "int32":
		return Int32, true
	case "int64":
		return Int64, true
	case "uint8":
		return Uint8, true
	case "uint32":
		return Uint32, true
	case "bool":
		return Bool, true
	default:
		return 0, false
	}
}
