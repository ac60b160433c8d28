// Package identifier classifies opaque lookup strings into the database id
// and fingerprint namespaces.
package identifier

// Kind is the namespace an identifier belongs to
type Kind int

const (
	KindInvalid Kind = iota
	KindDatabaseID
	KindSHA1
	KindSHA256
)

// Identifier lengths, in characters
const (
	DatabaseIDLength = 24
	SHA1Length       = 40
	SHA256Length     = 64
)

// Reasons reported for invalid identifiers
const (
	ReasonUnrecognizedLength = "unrecognized length"
	ReasonInvalidFingerprint = "invalid fingerprint value"
)

func (k Kind) String() string {
	switch k {
	case KindDatabaseID:
		return "id"
	case KindSHA1:
		return "sha1"
	case KindSHA256:
		return "sha256"
	default:
		return "invalid"
	}
}

// Class is the result of classifying an identifier
type Class struct {
	Kind   Kind
	Value  string
	Reason string
}

// Valid reports whether the identifier was recognized
func (c Class) Valid() bool {
	return c.Kind != KindInvalid
}

// Classify maps a download identifier to its namespace by exact length.
// The value is used verbatim: no trimming and no case folding.
func Classify(raw string) Class {
	switch len(raw) {
	case DatabaseIDLength:
		return Class{Kind: KindDatabaseID, Value: raw}
	case SHA1Length:
		return Class{Kind: KindSHA1, Value: raw}
	case SHA256Length:
		return Class{Kind: KindSHA256, Value: raw}
	}
	return Class{Kind: KindInvalid, Value: raw, Reason: ReasonUnrecognizedLength}
}

// ClassifyFingerprint is like Classify but only accepts SHA256 and SHA1 lengths.
func ClassifyFingerprint(raw string) Class {
	switch len(raw) {
	case SHA256Length:
		return Class{Kind: KindSHA256, Value: raw}
	case SHA1Length:
		return Class{Kind: KindSHA1, Value: raw}
	}
	return Class{Kind: KindInvalid, Value: raw, Reason: ReasonInvalidFingerprint}
}
