package storage

import "github.com/minidb/storage/pkg/bitwise"

// invalidStateBit is the bit within the PInvalidDataFileState byte that
// flags an abnormal close. Using a single bit rather than the whole byte
// leaves the remaining 7 bits of that byte free for a future flag without
// another page-zero layout change.
const invalidStateBit = 0

// IsInvalidState reports whether page 0's invalid-state bit is set.
func IsInvalidState(page0 []byte) bool {
	return bitwise.IsSet(uint64(page0[PInvalidDataFileState]), invalidStateBit)
}

// SetInvalidState sets page 0's invalid-state bit, requesting recovery on
// the next open. This is the only byte-level commitment the storage core
// makes to page 0's layout (spec.md section 6).
func SetInvalidState(page0 []byte) {
	page0[PInvalidDataFileState] = byte(bitwise.Set(uint64(page0[PInvalidDataFileState]), invalidStateBit))
}

// ClearInvalidState unsets the bit; used by recovery (external to the
// core) once it has acted on the flag.
func ClearInvalidState(page0 []byte) {
	page0[PInvalidDataFileState] = byte(bitwise.Unset(uint64(page0[PInvalidDataFileState]), invalidStateBit))
}

// WriteCollationPragma records the collation chosen at creation time into
// page 0. It is written once, at initial creation, and ignored thereafter.
func WriteCollationPragma(page0 []byte, collation uint8) {
	page0[PCollationPragma] = collation
}

// ReadCollationPragma reads back the collation pragma written at creation.
func ReadCollationPragma(page0 []byte) uint8 {
	return page0[PCollationPragma]
}
