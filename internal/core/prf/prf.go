// Package prf derives deterministic pseudo-random values from committed
// public data.
//
// Every gameplay decision that is not an explicitly revealed move commitment
// (pairing order, fallback moves, jackpot triggers) must be derived through
// this package so that any third party can reproduce it from chain data
// alone. The byte layout is a wire contract shared with the authoritative
// ledger: SHA-256 over a fixed domain tag followed by fixed-width
// little-endian fields, truncated to the first 8 bytes and interpreted as an
// unsigned little-endian integer.
package prf

import (
	"crypto/sha256"
	"encoding/binary"
)

// Domain tags. Each distinct decision uses its own tag so rolls never
// correlate across purposes.
const (
	DomainPairOrder      = "pair-order"
	DomainFallbackMove   = "fallback-move"
	DomainFallbackStrike = "fallback-strike"
	DomainFallbackGuard  = "fallback-guard"
	DomainIchorShower    = "ichor-shower"
	DomainShowerWinner   = "shower-winner"
)

// Roll derives a deterministic value for one fighter on one turn.
//
// Layout: tag || rumbleID (8 bytes LE) || turn (4 bytes LE) || identity (32 bytes).
func Roll(domain string, rumbleID uint64, turn uint32, identity [32]byte) uint64 {
	h := sha256.New()
	h.Write([]byte(domain))

	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], rumbleID)
	binary.LittleEndian.PutUint32(buf[8:], turn)
	h.Write(buf[:])
	h.Write(identity[:])

	return truncate(h.Sum(nil))
}

// RollRumble derives a deterministic per-rumble value with no fighter or
// turn component, for rumble-scoped decisions such as the jackpot trigger.
//
// Layout: tag || rumbleID (8 bytes LE).
func RollRumble(domain string, rumbleID uint64) uint64 {
	h := sha256.New()
	h.Write([]byte(domain))

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], rumbleID)
	h.Write(buf[:])

	return truncate(h.Sum(nil))
}

func truncate(sum []byte) uint64 {
	return binary.LittleEndian.Uint64(sum[:8])
}
