// Package fingerprint computes the deterministic identity of a Session
// Context from its subscriber-identifying 5-tuple.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // identity key, not a security primitive; fixed across versions for compatibility
	"encoding/hex"
	"strconv"
)

// Compute renders circuitID, remoteID, sourceMAC, svlan and cvlan as
// strings (numerics base-10, absent values already empty), concatenates
// them in that fixed order with no separator, and reduces the result
// with MD5, returning the hex digest. The function is total and pure:
// equal inputs always produce an equal name, independent of any other
// Session Context field.
func Compute(circuitID, remoteID, sourceMAC string, svlan, cvlan int) string {
	buf := circuitID + remoteID + sourceMAC + strconv.Itoa(svlan) + strconv.Itoa(cvlan)
	sum := md5.Sum([]byte(buf)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
