package identity

import "github.com/vmihailenco/msgpack/v5"

func (id Identifier) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(id[:])
}

func (id *Identifier) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(b) != IdentifierSize {
		return ErrInvalidIdentifierLength
	}
	copy(id[:], b)
	return nil
}

func (f Fingerprint) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(f[:])
}

func (f *Fingerprint) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(b) != FingerprintSize {
		return errInvalidFingerprintLength
	}
	copy(f[:], b)
	return nil
}
