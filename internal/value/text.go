package value

// Text renders v for a single delimited-text cell.
//
//	Null / missing -> ""
//	String         -> the raw string
//	Number         -> the literal from the source document
//	Bool           -> "true" / "false"
//	Array, Object  -> JSON with sorted keys, literals kept
func Text(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Number:
		return val.String()
	case Bool:
		if val {
			return "true"
		}
		return "false"
	default:
		out, err := Marshal(v)
		if err != nil {
			return KindOf(v)
		}
		return string(out)
	}
}
