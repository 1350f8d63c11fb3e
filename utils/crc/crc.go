// SPDX-License-Identifier: Apache-2.0
//
// Copyright (C) 2021 Renesas Electronics Corporation.
// Copyright (C) 2021 EPAM Systems, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package crc implements the firmware image integrity code. The code width
// must match the one produced by the server-side packaging tool.
package crc

import (
	"hash"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/aoscloud/aos_common/aoserrors"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

// Supported checksum widths.
const (
	Width16 Width = 16
	Width32 Width = 32
)

// CRC-16/CCITT-FALSE parameters.
const (
	crc16Poly = 0x1021
	crc16Init = 0xffff
)

/***********************************************************************************************************************
 * Vars
 **********************************************************************************************************************/

var crc16Table = makeCrc16Table()

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Width checksum width in bits.
type Width int

// Verifier computes the integrity code incrementally over a byte stream.
type Verifier struct {
	width Width
	sum32 hash.Hash32
	sum16 uint16
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// NewVerifier creates verifier instance for the requested width.
func NewVerifier(width Width) (verifier *Verifier, err error) {
	switch width {
	case Width16, Width32:

	default:
		return nil, aoserrors.Errorf("unsupported checksum width: %d", width)
	}

	verifier = &Verifier{width: width}
	verifier.Reset()

	return verifier, nil
}

// Write feeds the next chunk of the stream into the verifier.
func (verifier *Verifier) Write(data []byte) (n int, err error) {
	if verifier.width == Width32 {
		return verifier.sum32.Write(data) //nolint:wrapcheck // never fails
	}

	for _, b := range data {
		verifier.sum16 = verifier.sum16<<8 ^ crc16Table[byte(verifier.sum16>>8)^b]
	}

	return len(data), nil
}

// Sum returns the code computed over all bytes written so far.
func (verifier *Verifier) Sum() (sum uint32) {
	if verifier.width == Width32 {
		return verifier.sum32.Sum32()
	}

	return uint32(verifier.sum16)
}

// Reset resets the verifier to its initial state.
func (verifier *Verifier) Reset() {
	verifier.sum32 = crc32.NewIEEE()
	verifier.sum16 = crc16Init
}

// Matches compares the computed code against the expected hex string.
func Matches(computed uint32, expectedHex string) (matches bool) {
	expected, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(expectedHex), "0x"), 16, 32)
	if err != nil {
		return false
	}

	return computed == uint32(expected)
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func makeCrc16Table() (table [256]uint16) {
	for i := range table {
		crc := uint16(i) << 8

		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}

		table[i] = crc
	}

	return table
}
