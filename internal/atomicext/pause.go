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

// Package atomicext holds small atomic/spin-wait helpers shared by the
// cache engine's RCU-style quiescence barriers.
package atomicext

import "runtime"

// Pause hints to the scheduler and (where available) the processor that
// the calling goroutine is in a spin-wait loop, the same hint the
// original Pause() gave the CPU front-end. We don't have the assembly
// stub that backed the amd64 PAUSE instruction in the source this was
// grounded on, so this is the portable, pure-Go rendition: it yields the
// P so a waiting quiescence barrier doesn't starve the goroutine it is
// waiting on.
//
//go:noinline
func Pause() {
	runtime.Gosched()
}
