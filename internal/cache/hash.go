// Copyright (C) 2026 The Edamame Authors.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cache

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/dchest/siphash"
)

// hasher is the stable, collision-resistant 64-bit keyed hash §4.2.2
// assumes. Like ion/zion's hash.go, the key is generated once per
// process so that hash values are not predictable across restarts, but
// is held fixed for the process lifetime so two calls with the same key
// always probe the same sequence.
type hasher struct {
	k0, k1 uint64
}

func newHasher() hasher {
	var seed [16]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing means the platform has no entropy
		// source at all; fall back to a fixed key rather than
		// failing table construction.
		binary.LittleEndian.PutUint64(seed[0:8], 0x9E3779B97F4A7C15)
		binary.LittleEndian.PutUint64(seed[8:16], 0xC2B2AE3D27D4EB4F)
	}
	return hasher{
		k0: binary.LittleEndian.Uint64(seed[0:8]),
		k1: binary.LittleEndian.Uint64(seed[8:16]),
	}
}

// hash64 computes the keyed hash of key used for both the base index
// and the probing key in §4.2.2.
func (h hasher) hash64(key []byte) uint64 {
	return siphash.Hash(h.k0, h.k1, key)
}
