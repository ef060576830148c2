// Package ramf implements the RAMF wire codec spec section 4.1
// describes: a 10-byte format signature framing an ASN.1 field set
// wrapped in CMS SignedData.
package ramf

// FormatSignaturePrefix is the 8 ASCII bytes every RAMF message starts
// with.
const FormatSignaturePrefix = "Relaynet"

const (
	// MaxMessageLength is the overall cap on a serialized RAMF message.
	MaxMessageLength = 9_437_184
	// MaxPayloadLength is the cap on the enveloped ciphertext payload.
	MaxPayloadLength = (1 << 23) - 1
	// MaxSDUPlaintextLength is the cap on a Parcel/CargoMessageSet's
	// plaintext before enveloping, chosen so the ciphertext stays under
	// MaxPayloadLength.
	MaxSDUPlaintextLength = 8_322_048
	// MaxRecipientAddressLength bounds recipientAddress.
	MaxRecipientAddressLength = 1024
	// MaxIDLength bounds id.
	MaxIDLength = 64
	// MaxTTL bounds ttl, 180 days in seconds.
	MaxTTL = 15_552_000
	// CargoClockDriftToleranceSeconds is how far into the past Cargo creation
	// times are clamped to tolerate relay clock drift.
	CargoClockDriftToleranceSeconds = 3 * 60 * 60
	// CDARenewalThresholdSeconds is the minimum remaining validity a CDA
	// issuer certificate may have before it must be renewed.
	CDARenewalThresholdSeconds = 90 * 24 * 60 * 60
	// CDARenewedValiditySeconds is the validity period a renewed CDA
	// issuer certificate receives.
	CDARenewedValiditySeconds = 180 * 24 * 60 * 60
)

const (
	// ParcelType and ParcelVersion are the Parcel concrete message
	// constants (spec section 4.6).
	ParcelType    byte = 0x50
	ParcelVersion byte = 0x00

	// CargoType and CargoVersion are the Cargo concrete message
	// constants.
	CargoType    byte = 0x43
	CargoVersion byte = 0x00
)
