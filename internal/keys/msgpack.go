package keys

import "github.com/vmihailenco/msgpack/v5"

// EncodeMsgpack and DecodeMsgpack implement msgpack.CustomEncoder and
// msgpack.CustomDecoder so fixed-size key arrays serialize as compact
// binary values instead of arrays of integers.

func (k PublicKey) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(k[:])
}

func (k *PublicKey) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	parsed, err := PublicKeyFromBytes(b)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k SecretKey) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(k[:])
}

func (k *SecretKey) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	parsed, err := SecretKeyFromBytes(b)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (n Nonce) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(n[:])
}

func (n *Nonce) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	if len(b) != NonceSize {
		return errInvalidNonceLength
	}
	copy(n[:], b)
	return nil
}
