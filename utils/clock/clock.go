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

// Package clock provides UTC timestamps for status records.
package clock

import "time"

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// SystemClock provides wall clock time.
type SystemClock struct{}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// NowUTC returns current time as ISO-8601 UTC string.
func (clock *SystemClock) NowUTC() (timestamp string) {
	return time.Now().UTC().Format(time.RFC3339)
}
