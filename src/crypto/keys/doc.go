// Package keys implements the public key cryptography used throughout the
// federation.
//
// Every sub-KI node owns a key-pair that it uses to sign the knowledge
// proposals it submits; the aggregator holds its own key-pair to re-sign
// ledger blocks that passed consensus. We use Ed25519: public keys are a
// fixed 32 bytes, signatures a fixed 64 bytes, and verification is
// deterministic with no nonce-reuse hazards.
package keys
