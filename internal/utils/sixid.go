package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixIDHookFunc defines the signature for the NewSixID test hook.
// It returns a SixID and a boolean indicating whether to override the default generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is a package-level variable that tests can set to override NewSixID behavior.
var NewSixIDHook SixIDHookFunc

// sixIDSubtype is the custom BSON binary subtype SixIDs are stored with.
const sixIDSubtype byte = 0x80

// SixID is a 6-byte ID stored as BSON BinData with custom subtype 0x80
type SixID [6]byte

// ErrInvalidSixID is returned for ids that do not decode to 6 bytes.
var ErrInvalidSixID = errors.New("invalid SixID")

// NewSixID creates a new 6-byte SixID using random data
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}

	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand only fails when the OS entropy source is unusable
		panic(fmt.Sprintf("sixid: reading random bytes: %v", err))
	}
	return id
}

// IsZero reports whether the id is unset.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// ParseSixID parses the Crockford Base32 representation of a SixID.
// Unlike ParseCrockfordSixID it rejects the empty string.
func ParseSixID(s string) (SixID, error) {
	if strings.TrimSpace(s) == "" {
		return SixID{}, fmt.Errorf("%w: empty", ErrInvalidSixID)
	}
	return ParseCrockfordSixID(s)
}

// Crockford Base32 encoding alphabet (uppercase)
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Mapping from Crockford Base32 chars to their values
var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 32)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}

	lower := strings.ToLower(crockfordAlphabet)
	for i := range lower {
		if i >= 10 {
			crockfordDecodeMap[lower[i]] = byte(i)
		}
	}

	// Commonly confused characters
	crockfordDecodeMap['O'] = crockfordDecodeMap['0']
	crockfordDecodeMap['o'] = crockfordDecodeMap['0']
	crockfordDecodeMap['I'] = crockfordDecodeMap['1']
	crockfordDecodeMap['i'] = crockfordDecodeMap['1']
	crockfordDecodeMap['L'] = crockfordDecodeMap['1']
	crockfordDecodeMap['l'] = crockfordDecodeMap['1']
}

// String returns the Crockford Base32 (uppercase) representation of the 6-byte SixID
func (u SixID) String() string {
	// 6 bytes = 48 bits, requires ceil(48/5) = 10 characters in Base32
	result := make([]byte, 0, 10)
	var bits, offset uint

	for i := 0; i < 6; i++ {
		bits |= uint(u[i]) << offset
		offset += 8

		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}

	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}

	return string(result)
}

// ParseCrockfordSixID converts a Crockford Base32 string back to 6-byte SixID.
// The empty string decodes to the zero id.
func ParseCrockfordSixID(s string) (SixID, error) {
	if s == "" {
		return SixID{}, nil
	}

	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")

	if len(s) != 10 {
		return SixID{}, fmt.Errorf("%w: string length must be 10", ErrInvalidSixID)
	}

	var id SixID
	var bits uint64
	var offset uint
	byteIndex := 0

	for i := 0; i < 10; i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, fmt.Errorf("%w: invalid character %q", ErrInvalidSixID, s[i])
		}

		bits |= uint64(val) << offset
		offset += 5

		for offset >= 8 && byteIndex < 6 {
			id[byteIndex] = byte(bits & 0xFF)
			byteIndex++
			bits >>= 8
			offset -= 8
		}
	}

	if byteIndex != 6 {
		return SixID{}, fmt.Errorf("%w: couldn't decode 6 bytes", ErrInvalidSixID)
	}
	return id, nil
}

// MarshalBSONValue stores the id as BinData subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue decodes BinData subtype 0x80. BSON null decodes to the zero id.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*u = SixID{}
		return nil
	}
	if t != bsontype.Binary {
		return fmt.Errorf("%w: expected BSON binary, got %s", ErrInvalidSixID, t)
	}
	subtype, bin, _, ok := bsoncore.ReadBinary(data)
	if !ok {
		return fmt.Errorf("%w: malformed BSON binary", ErrInvalidSixID)
	}
	if subtype != sixIDSubtype || len(bin) != 6 {
		return fmt.Errorf("%w: incorrect subtype or length", ErrInvalidSixID)
	}
	copy(u[:], bin)
	return nil
}

// MarshalText lets SixID act as a map key and a form/query value.
func (u SixID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText parses the Crockford form.
func (u *SixID) UnmarshalText(data []byte) error {
	parsed, err := ParseCrockfordSixID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalJSON marshals the SixID as a JSON string in Crockford Base32 format.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON unmarshals a SixID from a JSON string in Crockford Base32 format.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return u.UnmarshalText([]byte(s))
}
