package message

import (
	"context"
	"encoding/asn1"
	"time"

	"github.com/pkg/errors"

	"github.com/relaynet-go/ramf/ramf"
	"github.com/relaynet-go/ramf/ramferrors"
)

// CargoMessage is a single encapsulated message destined for a
// CargoMessageSet batch.
type CargoMessage struct {
	Serialized []byte
	ExpiryDate time.Time
}

// CargoMessageBatch is one yielded batch: the DER-encoded
// CargoMessageSet (a SEQUENCE OF OCTET STRING) and the maximum expiry
// date among its contained messages.
type CargoMessageBatch struct {
	MessageSetSerialized []byte
	ExpiryDate           time.Time
}

// NextMessageFunc pulls the next message from the underlying source,
// suspending until one is available; ok is false once the source is
// exhausted.
type NextMessageFunc func(ctx context.Context) (msg CargoMessage, ok bool, err error)

// BatchMessagesSerialized packs messages pulled from next greedily
// into CargoMessageSet batches, flushing a batch via yield before the
// next message would push it over the SDU limit. Each batch's
// ExpiryDate is the maximum across its contained messages (preserved
// for wire compatibility, not min-expiry). An individual message too
// large to fit a batch on its own (over the SDU limit minus 10 octets
// of DER framing) fails the whole operation. ctx
// cancellation is checked between messages, propagating from consumer
// to source.
func BatchMessagesSerialized(ctx context.Context, next NextMessageFunc, yield func(CargoMessageBatch) error) error {
	var batch [][]byte
	var batchSize int
	var batchExpiry time.Time

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		der, err := asn1.Marshal(batch)
		if err != nil {
			return ramferrors.NewSyntax("failed to serialize cargo message set batch", err)
		}
		if err := yield(CargoMessageBatch{MessageSetSerialized: der, ExpiryDate: batchExpiry}); err != nil {
			return err
		}
		batch = nil
		batchSize = 0
		batchExpiry = time.Time{}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, ok, err := next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return flush()
		}

		// Each OCTET STRING costs its content length plus at most 5 DER
		// octets (one tag octet, 0x83 and three length octets), and the
		// enclosing SEQUENCE header takes at most 5 more. Being
		// conservative here only risks flushing a batch slightly early,
		// never exceeding the limit.
		const derTLOverhead = 5
		maxMessageLength := ramf.MaxSDUPlaintextLength - 2*derTLOverhead
		if len(msg.Serialized) > maxMessageLength {
			return ramferrors.NewSyntax("failed to batch cargo messages",
				errors.Errorf("message length %d exceeds the %d-byte maximum for a message in a batch", len(msg.Serialized), maxMessageLength))
		}

		messageCost := len(msg.Serialized) + derTLOverhead
		if batchSize+messageCost > ramf.MaxSDUPlaintextLength-derTLOverhead && len(batch) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}

		batch = append(batch, msg.Serialized)
		batchSize += messageCost
		if msg.ExpiryDate.After(batchExpiry) {
			batchExpiry = msg.ExpiryDate
		}
	}
}

// DeserializeCargoMessageSet decodes a CargoMessageSet's DER into its
// constituent encapsulated messages.
func DeserializeCargoMessageSet(der []byte) ([][]byte, error) {
	var messages [][]byte
	if _, err := asn1.Unmarshal(der, &messages); err != nil {
		return nil, ramferrors.NewSyntax("failed to deserialize cargo message set", err)
	}
	return messages, nil
}
