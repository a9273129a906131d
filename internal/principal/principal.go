// Package principal implements caller identities and their ledger account
// identifiers.
//
// A principal is the opaque textual identity of a caller. Identities are
// compared by equality only; nothing is ever inferred from their content
// beyond the checksum validation performed when parsing.
package principal

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
)

// Principal is the textual identity of a caller.
type Principal string

func (p Principal) String() string { return string(p) }

// Equal reports whether two principals denote the same identity.
func (p Principal) Equal(other Principal) bool { return p == other }

var textEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// FromText parses and validates a principal in its textual form: dash
// separated base32 groups whose decoded bytes carry a CRC32 prefix over the
// raw identity bytes.
func FromText(text string) (Principal, error) {
	raw, err := rawBytes(text)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("principal %q: empty identity", text)
	}
	return Principal(strings.ToLower(text)), nil
}

func rawBytes(text string) ([]byte, error) {
	ungrouped := strings.ReplaceAll(strings.ToUpper(text), "-", "")
	decoded, err := textEncoding.DecodeString(ungrouped)
	if err != nil {
		return nil, fmt.Errorf("principal %q: %w", text, err)
	}
	if len(decoded) < 4 {
		return nil, fmt.Errorf("principal %q: too short", text)
	}
	sum := binary.BigEndian.Uint32(decoded[:4])
	body := decoded[4:]
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("principal %q: checksum mismatch", text)
	}
	return body, nil
}

// AccountIdentifier derives the hex ledger account identifier for a
// principal and subaccount index. The construction is the ledger's
// account-id scheme: a CRC32 of the SHA-224 domain-separated hash,
// prepended to that hash.
func AccountIdentifier(p Principal, subaccount uint32) (string, error) {
	raw, err := rawBytes(string(p))
	if err != nil {
		return "", err
	}

	var sub [32]byte
	binary.BigEndian.PutUint32(sub[28:], subaccount)

	h := sha256.New224()
	h.Write([]byte("\x0Aaccount-id"))
	h.Write(raw)
	h.Write(sub[:])
	digest := h.Sum(nil)

	var out [32]byte
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(digest))
	copy(out[4:], digest)
	return hex.EncodeToString(out[:]), nil
}
