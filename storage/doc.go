// Package storage persists the complete node state under a symmetric at-rest
// key.
//
// The on-disk file is ASCII text: padded RFC 4648 base-32 of
//
//	nonce(12) || AES-256-GCM(msgpack(NodeState)) with a 16-byte tag
//
// The 32-byte key lives in a sibling "<path>.key" file, generated once on
// first run. Every save replaces the file wholesale.
//
// Load never blocks startup: a missing file yields OutcomeFresh and any other
// failure (unreadable file, bad base-32, wrong key, tampering, undecodable
// state) yields OutcomeReset together with the cause. The caller then starts
// from a fresh identity. A reset is indistinguishable from a lost or replaced
// key, so callers should surface it to the user; KeyMnemonic exports the key
// as a BIP-39 phrase for exactly that situation.
package storage
