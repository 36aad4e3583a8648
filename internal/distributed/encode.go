package distributed

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

// MaxEncodedPayload is the largest payload ByteTensorEncode accepts: the
// length is stored in a single leading byte.
const MaxEncodedPayload = 255

// ErrPayloadTooLarge is returned by ByteTensorEncode for payloads whose
// encoding exceeds MaxEncodedPayload bytes.
var ErrPayloadTooLarge = errors.New("distributed: can't encode data greater than 255 bytes")

// ByteTensorEncode gob-encodes payload into dst: dst[0] holds the encoded
// length and dst[1:] the bytes. dst must hold at least length+1 bytes.
func ByteTensorEncode(dst []byte, payload any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return errors.Wrap(err, "distributed: encoding payload")
	}
	n := buf.Len()
	if n > MaxEncodedPayload {
		return errors.Wrapf(ErrPayloadTooLarge, "got %d bytes", n)
	}
	if len(dst) < n+1 {
		return errors.Errorf("distributed: destination holds %d bytes, need %d", len(dst), n+1)
	}
	dst[0] = byte(n)
	copy(dst[1:], buf.Bytes())
	return nil
}

// ByteTensorDecode reverses ByteTensorEncode, decoding into out.
func ByteTensorDecode(src []byte, out any) error {
	if len(src) == 0 {
		return errors.New("distributed: empty encoded payload")
	}
	n := int(src[0])
	if len(src) < n+1 {
		return errors.Errorf("distributed: encoded payload announces %d bytes, has %d", n, len(src)-1)
	}
	return errors.Wrap(gob.NewDecoder(bytes.NewReader(src[1:n+1])).Decode(out), "distributed: decoding payload")
}
