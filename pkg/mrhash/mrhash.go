// Package mrhash implements the content hash used by Mail.ru Cloud to
// identify uploaded blobs.
//
// Content of at most Size bytes hashes to itself, right-padded with zero
// bytes. Larger content hashes to SHA1 over the prefix "mrCloud", the
// content, and the decimal content length.
//
// Hashes are exchanged with the service as 40 uppercase hex characters.
package mrhash

import (
	"crypto/sha1" //nolint:gosec // the service defines the hash; not used for security
	"encoding"
	"encoding/hex"
	"hash"
	"io"
	"strconv"
	"strings"
)

const (
	// Size is the length, in bytes, of a digest.
	Size = sha1.Size

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = sha1.BlockSize

	// prefix is mixed into the SHA1 state before any content.
	prefix = "mrCloud"
)

// digest is the internal state of a hash computation.
type digest struct {
	sha   hash.Hash
	small [Size]byte
	total int64
}

// New returns a new hash.Hash computing the Mail.ru Cloud content hash.
func New() hash.Hash {
	d := &digest{}
	d.Reset()

	return d
}

// Write absorbs more data into the running hash.
// It always returns len(p), nil.
func (d *digest) Write(p []byte) (int, error) {
	if d.total < Size {
		copy(d.small[d.total:], p)
	}

	d.sha.Write(p)
	d.total += int64(len(p))

	return len(p), nil
}

// Sum appends the current hash to b and returns the resulting slice.
// It does not change the underlying hash state.
func (d *digest) Sum(b []byte) []byte {
	if d.total <= Size {
		return append(b, d.small[:]...)
	}

	// Finish on a copy of the SHA1 state so Sum stays non-destructive.
	state, err := d.sha.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		panic("mrhash: marshaling sha1 state: " + err.Error())
	}

	dup := sha1.New() //nolint:gosec // see import
	if err := dup.(encoding.BinaryUnmarshaler).UnmarshalBinary(state); err != nil {
		panic("mrhash: restoring sha1 state: " + err.Error())
	}

	io.WriteString(dup, strconv.FormatInt(d.total, 10))

	return dup.Sum(b)
}

// Reset resets the hash to its initial state.
func (d *digest) Reset() {
	d.sha = sha1.New() //nolint:gosec // see import
	io.WriteString(d.sha, prefix)
	d.small = [Size]byte{}
	d.total = 0
}

// Size returns the number of bytes Sum will return.
func (d *digest) Size() int {
	return Size
}

// BlockSize returns the hash's underlying block size.
func (d *digest) BlockSize() int {
	return BlockSize
}

// Encode formats a digest the way the service does: uppercase hex.
func Encode(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// FromReader hashes everything r yields and returns the encoded digest.
func FromReader(r io.Reader) (string, error) {
	h := New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return Encode(h.Sum(nil)), nil
}

// Equal compares two encoded digests, ignoring hex case.
func Equal(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// Valid reports whether s is an encoded digest: 2*Size hex characters in
// either case.
func Valid(s string) bool {
	if len(s) != hex.EncodedLen(Size) {
		return false
	}

	_, err := hex.DecodeString(s)

	return err == nil
}
