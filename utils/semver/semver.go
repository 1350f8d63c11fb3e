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

// Package semver orders firmware version strings.
package semver

import (
	"github.com/aoscloud/aos_common/aoserrors"
	"github.com/hashicorp/go-version"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

// Comparison results.
const (
	Less Result = iota - 1
	Equal
	Greater
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Result result of version comparison.
type Result int

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// Compare orders two version strings. Malformed input is returned as an error.
func Compare(a, b string) (result Result, err error) {
	versionA, err := version.NewVersion(a)
	if err != nil {
		return Equal, aoserrors.Wrap(err)
	}

	versionB, err := version.NewVersion(b)
	if err != nil {
		return Equal, aoserrors.Wrap(err)
	}

	return Result(versionA.Compare(versionB)), nil
}

// IsGreater reports whether candidate version is strictly newer than current.
// Malformed version strings are treated as not greater: updating on ambiguous
// version data is never allowed.
func IsGreater(candidate, current string) (greater bool) {
	result, err := Compare(candidate, current)
	if err != nil {
		return false
	}

	return result == Greater
}

func (result Result) String() string {
	return [...]string{"less", "equal", "greater"}[result+1]
}
