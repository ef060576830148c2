// Package asn1x collects the small ASN.1 codec helpers shared by the
// certificate, CMS, and RAMF layers: GeneralizedTime truncated to whole
// seconds, big-integer TTL narrowing, and implicit-tag SEQUENCE framing
// conventions used throughout the wire formats in spec section 6.
package asn1x

import (
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// MaxSafeInteger is 2**53 - 1, the largest integer a narrowed
// arbitrary-precision ASN.1 INTEGER is allowed to represent. TTL is
// parsed as a big.Int and narrowed through this check even though the
// RAMF TTL cap (15_552_000) would already reject anything this large —
// defense in depth against a field set that lies about its own bounds.
const MaxSafeInteger = (1 << 53) - 1

// TruncateToSeconds drops sub-second precision from t, as every
// timestamp in this module (creationDate, notBefore, notAfter) is
// carried at one-second resolution on the wire.
func TruncateToSeconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}

// generalizedTimeLayout is the GeneralizedTime layout this module
// always emits: whole seconds, UTC, no fractional part.
const generalizedTimeLayout = "20060102150405Z"

// GeneralizedTimeBody returns the ASN.1 GeneralizedTime content octets
// for t (truncated to seconds, UTC) — the value alone, without its tag
// and length, for embedding under an implicit tag via RawImplicit.
//
// encoding/asn1's Unmarshal does not honor a "generalized" time type
// once a struct field is also implicitly tagged: it resolves the
// universal tag for time.Time fields by inspecting the wire class, and
// an implicitly-tagged field is never class Universal, so it always
// falls back to parsing UTCTime. Carrying the field as a raw value and
// handling the GeneralizedTime body ourselves sidesteps that.
func GeneralizedTimeBody(t time.Time) []byte {
	return []byte(TruncateToSeconds(t).Format(generalizedTimeLayout))
}

// ParseGeneralizedTimeBody parses content octets produced by
// GeneralizedTimeBody back into a UTC time.
func ParseGeneralizedTimeBody(body []byte) (time.Time, error) {
	t, err := time.Parse(generalizedTimeLayout, string(body))
	if err != nil {
		return time.Time{}, errors.Wrap(err, "failed to decode GeneralizedTime")
	}
	return t.UTC(), nil
}

// NarrowBigInt converts an arbitrary-precision ASN.1 INTEGER to an
// int64, failing if the value would lose precision as a 53-bit-safe
// integer (the representation every other layer of this module assumes
// TTLs and similar small counters use).
func NarrowBigInt(n *big.Int) (int64, error) {
	if !n.IsInt64() {
		return 0, errors.New("integer does not fit in 64 bits")
	}
	v := n.Int64()
	if v < 0 || v > MaxSafeInteger {
		return 0, errors.Errorf("integer %d exceeds the 2**53-1 safe-integer bound", v)
	}
	return v, nil
}

// RawImplicit wraps a byte slice destined for an implicitly-tagged
// context-specific ASN.1 field (class 2) at the given tag number, for
// use inside hand-assembled SEQUENCEs where the per-field Go type
// varies too much for struct tags alone (notably RAMF's field set,
// which mixes VisibleString, GeneralizedTime, INTEGER, and OCTET
// STRING under implicit tags 0-4).
func RawImplicit(tag int, class int, bytes []byte) asn1.RawValue {
	return asn1.RawValue{Class: class, Tag: tag, IsCompound: false, Bytes: bytes}
}

// ContextSpecific is the ASN.1 class byte for context-specific tags,
// i.e. [n] without "application" or "universal" qualification.
const ContextSpecific = asn1.ClassContextSpecific
