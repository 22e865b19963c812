// Package receipt seals run receipts: it canonicalizes them to a
// deterministic JSON form, computes the SHA-256 digest, and links sealed
// receipts into a verifiable chain.
package receipt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"backplane/internal/contract"
)

// SerializationError reports a canonicalization or hashing failure. This
// is always a programming-level bug rather than a user-recoverable
// condition.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("receipt serialization failed during %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// CanonicalJSON produces the deterministic JSON form used for hashing:
// the value is marshalled, re-decoded into generic maps with numeric
// literals preserved, and marshalled again so every object's keys come
// out sorted regardless of struct field order.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Op: "marshal", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, &SerializationError{Op: "canonicalize", Err: err}
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, &SerializationError{Op: "remarshal", Err: err}
	}
	return out, nil
}

// SHA256Hex returns the lowercase hex encoding of the SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Hash computes the canonical hash of a receipt. The receipt_sha256 field
// is forced to null in the hash input so the stored hash never includes
// itself; recomputing on a sealed receipt therefore reproduces the same
// 64-character digest.
func Hash(r *contract.Receipt) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", &SerializationError{Op: "marshal", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return "", &SerializationError{Op: "canonicalize", Err: err}
	}
	tree["receipt_sha256"] = nil
	canonical, err := json.Marshal(tree)
	if err != nil {
		return "", &SerializationError{Op: "remarshal", Err: err}
	}
	return SHA256Hex(canonical), nil
}

// Seal computes the canonical hash and returns a copy of the receipt with
// ReceiptSHA256 set. The input receipt is not modified.
func Seal(r contract.Receipt) (contract.Receipt, error) {
	h, err := Hash(&r)
	if err != nil {
		return contract.Receipt{}, err
	}
	r.ReceiptSHA256 = &h
	return r, nil
}

// Verify recomputes the hash of a sealed receipt and reports whether the
// stored digest matches.
func Verify(r *contract.Receipt) error {
	if r.ReceiptSHA256 == nil {
		return fmt.Errorf("receipt is not sealed")
	}
	h, err := Hash(r)
	if err != nil {
		return err
	}
	if h != *r.ReceiptSHA256 {
		return fmt.Errorf("receipt hash mismatch: stored %s, computed %s", *r.ReceiptSHA256, h)
	}
	return nil
}
