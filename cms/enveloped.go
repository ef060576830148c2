package cms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/relaynet-go/ramf/cert"
	"github.com/relaynet-go/ramf/keys"
	"github.com/relaynet-go/ramf/ramferrors"
)

// EnvelopedVariant distinguishes the two RecipientInfo shapes spec
// section 4.3 defines.
type EnvelopedVariant int

const (
	// VariantSessionless is key-transport: the content key is encrypted
	// to the recipient's RSA identity public key.
	VariantSessionless EnvelopedVariant = 1
	// VariantSession is key-agreement: the content key is encrypted
	// using an ECDH shared secret between a fresh originator ephemeral
	// key and the recipient's published session key.
	VariantSession EnvelopedVariant = 2
)

// AESKeySize is one of the three content-encryption key sizes spec
// section 4.3 allows.
type AESKeySize int

const (
	AES128 AESKeySize = 128
	AES192 AESKeySize = 192
	AES256 AESKeySize = 256
)

func (s AESKeySize) bytes() int { return int(s) / 8 }

func validAESKeySize(s AESKeySize) bool {
	return s == AES128 || s == AES192 || s == AES256
}

// OriginatorKeyIDOID is the unprotected-attribute OID spec section 6
// assigns to the originator ephemeral key id in the session variant.
var OriginatorKeyIDOID = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 17, 0, 1, 0}

var aesCBCOIDs = map[AESKeySize]asn1.ObjectIdentifier{
	AES128: {2, 16, 840, 1, 101, 3, 4, 1, 2},
	AES192: {2, 16, 840, 1, 101, 3, 4, 1, 22},
	AES256: {2, 16, 840, 1, 101, 3, 4, 1, 42},
}

func aesKeySizeFromOID(oid asn1.ObjectIdentifier) (AESKeySize, bool) {
	for size, candidate := range aesCBCOIDs {
		if candidate.Equal(oid) {
			return size, true
		}
	}
	return 0, false
}

var oidRSAESOAEP = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 7}
var oidECDHStdSHA256KDF = asn1.ObjectIdentifier{1, 3, 132, 1, 11, 1}

// envelopedDataASN1 is the top-level SEQUENCE this module serializes:
// a single RecipientInfo (tagged by variant, 1 or 2), the encrypted
// content, and optional unprotected attributes carrying the originator
// ephemeral key id for the session variant.
type envelopedDataASN1 struct {
	Version              int
	RecipientInfo        asn1.RawValue
	EncryptedContentInfo encryptedContentInfoASN1
	UnprotectedAttrs     []attributeASN1 `asn1:"optional,tag:1"`
}

type encryptedContentInfoASN1 struct {
	ContentEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedContent           []byte `asn1:"tag:0,implicit"`
}

type attributeASN1 struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"set"`
}

type keyTransRecipientInfoASN1 struct {
	RecipientCertSerialNumber *big.Int
	KeyEncryptionAlgorithm    pkix.AlgorithmIdentifier
	EncryptedKey              []byte
}

// keyAgreeRecipientInfoASN1 carries no wrapped key: the content-
// encryption key is never transmitted. Both ends derive it
// independently by feeding their own ECDH shared secret through the
// same HKDF-SHA256 expansion (no salt, a fixed info string), so the
// same shared secret yields the same key on both ends.
type keyAgreeRecipientInfoASN1 struct {
	RecipientKeyID               []byte
	OriginatorPublicKeyAlgorithm pkix.AlgorithmIdentifier
	OriginatorPublicKey          asn1.BitString
	KeyAgreementAlgorithm        pkix.AlgorithmIdentifier
}

func algIDWithIVParams(oid asn1.ObjectIdentifier, iv []byte) (pkix.AlgorithmIdentifier, error) {
	params, err := asn1.Marshal(iv)
	if err != nil {
		return pkix.AlgorithmIdentifier{}, err
	}
	return pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.RawValue{FullBytes: params}}, nil
}

func ivFromAlgID(algID pkix.AlgorithmIdentifier) ([]byte, error) {
	var iv []byte
	if _, err := asn1.Unmarshal(algID.Parameters.FullBytes, &iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// EncryptSessionless encrypts plaintext to recipientCert's RSA identity
// public key (RSA-OAEP/SHA-256 key transport, AES-CBC content
// encryption). getRecipientKeyId on the resulting envelope is the
// recipient certificate's serial number.
func EncryptSessionless(plaintext []byte, recipientCert *cert.Certificate, keySize AESKeySize) ([]byte, error) {
	if keySize == 0 {
		keySize = AES128
	}
	if !validAESKeySize(keySize) {
		return nil, ramferrors.NewCMS("failed to encrypt EnvelopedData", errors.Errorf("invalid AES key size %d", keySize))
	}
	recipientRSAKey, ok := recipientCert.X509().PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, ramferrors.NewCMS("failed to encrypt EnvelopedData", errors.New("recipient certificate does not carry an RSA public key"))
	}

	contentKey := make([]byte, keySize.bytes())
	if _, err := rand.Read(contentKey); err != nil {
		return nil, ramferrors.NewCMS("failed to encrypt EnvelopedData", err)
	}
	encryptedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, recipientRSAKey, contentKey, nil)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to encrypt content-encryption key", err)
	}

	ciphertext, iv, err := aesCBCEncrypt(contentKey, plaintext)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to encrypt EnvelopedData content", err)
	}

	recipientInfo := keyTransRecipientInfoASN1{
		RecipientCertSerialNumber: recipientCert.X509().SerialNumber,
		KeyEncryptionAlgorithm:    pkix.AlgorithmIdentifier{Algorithm: oidRSAESOAEP},
		EncryptedKey:              encryptedKey,
	}
	return marshalEnvelope(VariantSessionless, recipientInfo, keySize, iv, ciphertext, nil)
}

// EncryptSession encrypts plaintext to a recipient session public key
// via ECDH key agreement: a fresh originator ephemeral key pair is
// generated, the shared secret is expanded through HKDF-SHA256 into an
// AES content-encryption key, and the originator's ephemeral key id is
// carried as an unprotected attribute. getRecipientKeyId on the
// resulting envelope is recipientSessionKeyID.
func EncryptSession(plaintext []byte, recipientSessionKeyID string, recipientSessionPublicKey *ecdsa.PublicKey, curve elliptic.Curve, keySize AESKeySize) ([]byte, string, error) {
	if keySize == 0 {
		keySize = AES128
	}
	if !validAESKeySize(keySize) {
		return nil, "", ramferrors.NewCMS("failed to encrypt EnvelopedData", errors.Errorf("invalid AES key size %d", keySize))
	}

	originatorKey, err := keys.GenerateSessionKeyPair(curve)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to generate originator ephemeral key", err)
	}
	sharedSecret, err := keys.ECDHSharedSecret(originatorKey, recipientSessionPublicKey)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to perform key agreement", err)
	}
	contentKey, err := expandKey(sharedSecret, keySize.bytes())
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to derive content-encryption key", err)
	}

	ciphertext, iv, err := aesCBCEncrypt(contentKey, plaintext)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to encrypt EnvelopedData content", err)
	}

	recipientKeyIDBytes, err := keys.KeyIDToBytes(recipientSessionKeyID)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to encrypt EnvelopedData", err)
	}

	originatorSPKI, err := x509.MarshalPKIXPublicKey(&originatorKey.PublicKey)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to marshal originator public key", err)
	}
	originatorAlgID, originatorBitString, err := splitSPKI(originatorSPKI)
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to marshal originator public key", err)
	}

	recipientInfo := keyAgreeRecipientInfoASN1{
		RecipientKeyID:               recipientKeyIDBytes[:],
		OriginatorPublicKeyAlgorithm: originatorAlgID,
		OriginatorPublicKey:          originatorBitString,
		KeyAgreementAlgorithm:        pkix.AlgorithmIdentifier{Algorithm: oidECDHStdSHA256KDF},
	}

	_, originatorKeyIDHex, err := keys.NewSessionKeyID()
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to generate originator key id", err)
	}
	originatorKeyIDBytes, _ := keys.KeyIDToBytes(originatorKeyIDHex)
	attrValue, err := asn1.Marshal(originatorKeyIDBytes[:])
	if err != nil {
		return nil, "", ramferrors.NewCMS("failed to marshal originator key id attribute", err)
	}
	unprotected := []attributeASN1{{
		Type:  OriginatorKeyIDOID,
		Value: asn1.RawValue{FullBytes: attrValue},
	}}

	der, err := marshalEnvelope(VariantSession, recipientInfo, keySize, iv, ciphertext, unprotected)
	if err != nil {
		return nil, "", err
	}
	return der, originatorKeyIDHex, nil
}

func splitSPKI(der []byte) (pkix.AlgorithmIdentifier, asn1.BitString, error) {
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return pkix.AlgorithmIdentifier{}, asn1.BitString{}, err
	}
	return spki.Algorithm, spki.PublicKey, nil
}

func marshalEnvelope(variant EnvelopedVariant, recipientInfo interface{}, keySize AESKeySize, iv, ciphertext []byte, unprotected []attributeASN1) ([]byte, error) {
	riDER, err := asn1.Marshal(recipientInfo)
	if err != nil {
		return nil, err
	}
	algID, err := algIDWithIVParams(aesCBCOIDs[keySize], iv)
	if err != nil {
		return nil, err
	}
	wire := envelopedDataASN1{
		Version: 1,
		RecipientInfo: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        int(variant),
			IsCompound: true,
			Bytes:      riDER,
		},
		EncryptedContentInfo: encryptedContentInfoASN1{
			ContentEncryptionAlgorithm: algID,
			EncryptedContent:           ciphertext,
		},
		UnprotectedAttrs: unprotected,
	}
	return asn1.Marshal(wire)
}

// ParsedEnvelope is a decoded EnvelopedData, ready for decryption once
// the caller has resolved the right private key.
type ParsedEnvelope struct {
	Variant             EnvelopedVariant
	keySize             AESKeySize
	iv                  []byte
	ciphertext          []byte
	encryptedKey        []byte
	sessionlessSerial   *big.Int
	sessionKeyID        string
	originatorKeyID     string
	originatorPublicKey *ecdsa.PublicKey
}

// ParseEnvelope decodes a DER-encoded EnvelopedData, determining its
// variant from the sole RecipientInfo's tag.
func ParseEnvelope(der []byte) (*ParsedEnvelope, error) {
	var wire envelopedDataASN1
	if _, err := asn1.Unmarshal(der, &wire); err != nil {
		return nil, ramferrors.NewCMS("failed to parse EnvelopedData", err)
	}

	keySize, ok := aesKeySizeFromOID(wire.EncryptedContentInfo.ContentEncryptionAlgorithm.Algorithm)
	if !ok {
		return nil, ramferrors.NewCMS("failed to parse EnvelopedData", errors.New("unsupported content-encryption algorithm"))
	}
	iv, err := ivFromAlgID(wire.EncryptedContentInfo.ContentEncryptionAlgorithm)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to parse EnvelopedData", err)
	}

	parsed := &ParsedEnvelope{
		Variant:    EnvelopedVariant(wire.RecipientInfo.Tag),
		keySize:    keySize,
		iv:         iv,
		ciphertext: wire.EncryptedContentInfo.EncryptedContent,
	}

	switch parsed.Variant {
	case VariantSessionless:
		var ri keyTransRecipientInfoASN1
		if _, err := asn1.Unmarshal(wire.RecipientInfo.Bytes, &ri); err != nil {
			return nil, ramferrors.NewCMS("failed to parse key-transport RecipientInfo", err)
		}
		parsed.sessionlessSerial = ri.RecipientCertSerialNumber
		parsed.encryptedKey = ri.EncryptedKey

	case VariantSession:
		var ri keyAgreeRecipientInfoASN1
		if _, err := asn1.Unmarshal(wire.RecipientInfo.Bytes, &ri); err != nil {
			return nil, ramferrors.NewCMS("failed to parse key-agreement RecipientInfo", err)
		}
		keyID, err := keys.KeyIDFromBytes(ri.RecipientKeyID)
		if err != nil {
			return nil, ramferrors.NewCMS("failed to parse key-agreement RecipientInfo", err)
		}
		parsed.sessionKeyID = keyID

		originatorSPKI, err := asn1.Marshal(struct {
			Algorithm pkix.AlgorithmIdentifier
			PublicKey asn1.BitString
		}{ri.OriginatorPublicKeyAlgorithm, ri.OriginatorPublicKey})
		if err != nil {
			return nil, ramferrors.NewCMS("failed to parse originator public key", err)
		}
		originatorPub, err := x509.ParsePKIXPublicKey(originatorSPKI)
		if err != nil {
			return nil, ramferrors.NewCMS("failed to parse originator public key", err)
		}
		ecdsaPub, ok := originatorPub.(*ecdsa.PublicKey)
		if !ok {
			return nil, ramferrors.NewCMS("failed to parse originator public key", errors.New("originator key is not an EC public key"))
		}
		parsed.originatorPublicKey = ecdsaPub

		found := false
		for _, attr := range wire.UnprotectedAttrs {
			if !attr.Type.Equal(OriginatorKeyIDOID) {
				continue
			}
			var rawID []byte
			if _, err := asn1.Unmarshal(attr.Value.FullBytes, &rawID); err != nil {
				return nil, ramferrors.NewCMS("failed to parse originator key id attribute", err)
			}
			keyID, err := keys.KeyIDFromBytes(rawID)
			if err != nil {
				return nil, ramferrors.NewCMS("failed to parse originator key id attribute", err)
			}
			parsed.originatorKeyID = keyID
			found = true
			break
		}
		if !found {
			return nil, ramferrors.NewCMS("failed to parse EnvelopedData", errors.New("missing originator key id unprotected attribute"))
		}

	default:
		return nil, ramferrors.NewCMS("failed to parse EnvelopedData", errors.Errorf("unsupported RecipientInfo variant %d", parsed.Variant))
	}

	return parsed, nil
}

// GetRecipientKeyID returns the recipient certificate's serial number
// (sessionless) or the recipient's session key id (session).
func (p *ParsedEnvelope) GetRecipientKeyID() string {
	if p.Variant == VariantSessionless {
		return hexBigInt(p.sessionlessSerial)
	}
	return p.sessionKeyID
}

// GetOriginatorKey recovers the peer's ephemeral key id and public key
// from the session variant; it is an error to call this on a
// sessionless envelope.
func (p *ParsedEnvelope) GetOriginatorKey() (string, *ecdsa.PublicKey, error) {
	if p.Variant != VariantSession {
		return "", nil, ramferrors.NewCMS("failed to get originator key", errors.New("envelope is not the session-key-agreement variant"))
	}
	return p.originatorKeyID, p.originatorPublicKey, nil
}

// DecryptSessionless recovers the plaintext using the recipient's RSA
// identity private key.
func (p *ParsedEnvelope) DecryptSessionless(identityPrivateKey *rsa.PrivateKey) ([]byte, error) {
	if p.Variant != VariantSessionless {
		return nil, ramferrors.NewCMS("failed to decrypt EnvelopedData", errors.New("envelope is not the sessionless variant"))
	}
	contentKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, identityPrivateKey, p.encryptedKey, nil)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to decrypt content-encryption key", err)
	}
	return aesCBCDecrypt(contentKey, p.iv, p.ciphertext)
}

// DecryptSession recovers the plaintext given the recipient's session
// private key, re-deriving the shared secret with the originator's
// ephemeral public key recovered from the envelope.
func (p *ParsedEnvelope) DecryptSession(sessionPrivateKey *ecdsa.PrivateKey) ([]byte, error) {
	if p.Variant != VariantSession {
		return nil, ramferrors.NewCMS("failed to decrypt EnvelopedData", errors.New("envelope is not the session variant"))
	}
	sharedSecret, err := keys.ECDHSharedSecret(sessionPrivateKey, p.originatorPublicKey)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to perform key agreement", err)
	}
	contentKey, err := expandKey(sharedSecret, p.keySize.bytes())
	if err != nil {
		return nil, ramferrors.NewCMS("failed to derive content-encryption key", err)
	}
	plaintext, err := aesCBCDecrypt(contentKey, p.iv, p.ciphertext)
	if err != nil {
		return nil, ramferrors.NewCMS("failed to decrypt EnvelopedData", err)
	}
	return plaintext, nil
}

func expandKey(sharedSecret []byte, size int) ([]byte, error) {
	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte("awala-channel-session"))
	key := make([]byte, size)
	if _, err := kdf.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func aesCBCEncrypt(key, plaintext []byte) (ciphertext, iv []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	padded := pkcs7Pad(plaintext, block.BlockSize())
	iv = make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, err
	}
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, iv, nil
}

func aesCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.New("ciphertext is not a multiple of the block size")
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("invalid PKCS#7 padding")
	}
	return data[:len(data)-padLen], nil
}

func hexBigInt(n *big.Int) string {
	if n == nil {
		return ""
	}
	return n.Text(16)
}

