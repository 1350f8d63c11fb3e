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

package statusreporter_test

import (
	"errors"
	"testing"

	"github.com/aosedge/aos_firmwareupdater/statusreporter"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

type testChannel struct {
	records   []statusreporter.StatusRecord
	submitErr error
}

/***********************************************************************************************************************
 * Tests
 **********************************************************************************************************************/

func TestReportStampsDeviceType(t *testing.T) {
	channel := &testChannel{}
	reporter := statusreporter.New("board", channel)

	reporter.Report(statusreporter.StatusRecord{
		CurrentVersion: "1.0.0",
		Status:         statusreporter.StatusCurrent,
	})

	if len(channel.records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(channel.records))
	}

	if channel.records[0].DeviceType != "board" {
		t.Errorf("Wrong device type: %s", channel.records[0].DeviceType)
	}

	if channel.records[0].Status != statusreporter.StatusCurrent {
		t.Errorf("Wrong status: %s", channel.records[0].Status)
	}
}

func TestSubmitErrorSwallowed(t *testing.T) {
	channel := &testChannel{submitErr: errors.New("connection lost")}
	reporter := statusreporter.New("board", channel)

	// Must not panic or propagate: reporting never aborts the update.
	reporter.Report(statusreporter.StatusRecord{Status: statusreporter.StatusError})

	if len(channel.records) != 0 {
		t.Errorf("Unexpected records: %v", channel.records)
	}
}

/***********************************************************************************************************************
 * Interfaces
 **********************************************************************************************************************/

func (channel *testChannel) Submit(record statusreporter.StatusRecord) (err error) {
	if channel.submitErr != nil {
		return channel.submitErr
	}

	channel.records = append(channel.records, record)

	return nil
}
