// Package elgamal implements twisted ElGamal encryption of bounded integer
// amounts over the prime-order subgroup of edwards25519.
//
// # Scheme
//
// A keypair is (x, P = x·G). An amount m in [0, MaxAmount] is encrypted with a
// fresh scalar r as
//
//	C = (C1, C2) = (r·G, m·G + r·P)
//
// and decrypted by computing M = C2 − x·C1 = m·G and solving the discrete log
// of M over the bounded plaintext range. Ciphertexts under the same public key
// add componentwise: Dec(A + B) = Dec(A) + Dec(B).
//
// # Guarantees
//
//   - Every package function is stateless and safe for concurrent use. The
//     baby-step table used by Decrypt is built once and never mutated.
//   - Scalar and point arithmetic on secrets goes through the constant-time
//     operations of filippo.io/edwards25519.
//   - Decrypt is total: a wrong key yields some integer, never an error or panic.
//     Callers that need to know whether the key was right compare against an
//     independently known value (VerifyCiphertext) or an external proof.
//   - Add does not guard against overflow; callers keep sums within MaxAmount.
//
// # Encoding
//
// Points use the 32-byte compressed edwards25519 encoding. Decoding rejects
// non-canonical encodings and points outside the prime-order subgroup.
// A Ciphertext encodes as 64 bytes (C1 || C2).
package elgamal
