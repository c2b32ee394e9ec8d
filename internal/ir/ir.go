// Package ir defines the line-oriented text form classes are disassembled
// into and assembled from.
//
// A document is one class. Directive lines start with a dot keyword
// (.VERSION, .NAME, ...). Field and method blocks open with .FIELD or .METHOD
// and close with .END; the lines between them are member lines, indented by
// four spaces, the first of which is a DEFINE header. The literal token null
// marks an absent optional value.
package ir

// Directive keywords.
const (
	Version     = ".VERSION"
	Access      = ".ACCESS"
	Name        = ".NAME"
	Signature   = ".SIGNATURE"
	Super       = ".SUPER"
	Implements  = ".IMPLEMENTS"
	Source      = ".SOURCE"
	InnerClass  = ".INNERCLASS"
	OuterClass  = ".OUTERCLASS"
	NestHost    = ".NESTHOST"
	NestMembers = ".NESTMEMBERS"
	Field       = ".FIELD"
	Method      = ".METHOD"
	MethodLVT   = ".METHODLVT"
	End         = ".END"
)

// Member line keywords.
const (
	Define       = "DEFINE"
	Value        = "VALUE"
	MemberSig    = "SIGNATURE"
	Throws       = "THROWS"
	Alias        = "ALIAS"
	Try          = "TRY"
	Line         = "LINE"
	MetaAlias    = "H_META"
	MetaAliasRef = "${H_META}"
)

// Indent prefixes every member line.
const Indent = "    "

// Null is the token for an absent optional value.
const Null = "null"

// Itf marks an interface method reference or handle.
const Itf = "itf"

// Nullable renders an optional string.
func Nullable(s *string) string {
	if s == nil {
		return Null
	}
	return *s
}

// ParseNullable is the inverse of Nullable.
func ParseNullable(tok string) *string {
	if tok == Null {
		return nil
	}
	return &tok
}

// LabelName returns the name of the i-th label of a method: A..Z, AA..ZZ,
// AAA and so on.
func LabelName(i int) string {
	var b []byte
	for i++; i > 0; i = (i - 1) / 26 {
		b = append(b, byte('A'+(i-1)%26))
	}
	for l, r := 0, len(b)-1; l < r; l, r = l+1, r-1 {
		b[l], b[r] = b[r], b[l]
	}
	return string(b)
}
