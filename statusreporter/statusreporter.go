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

// Package statusreporter builds update status records and emits them to the
// management channel. Delivery is best effort: a failed submit must never
// block or abort the update itself.
package statusreporter

import (
	log "github.com/sirupsen/logrus"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

// Update statuses.
const (
	StatusCurrent     Status = "CURRENT"
	StatusDownloading Status = "DOWNLOADING"
	StatusApplying    Status = "APPLYING"
	StatusError       Status = "ERROR"
)

// Substatus error tags.
const (
	SubstatusURINotHTTPS         = "URINotHTTPS"
	SubstatusDownloadFailed      = "DownloadFailed"
	SubstatusDeviceError         = "DeviceError"
	SubstatusFileSizeNotMatch    = "FileSizeNotMatch"
	SubstatusVerifyFailed        = "VerifyFailed"
	SubstatusApplyFirmwareFailed = "ApplyFirmwareFailed"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Status update status.
type Status string

// StatusRecord snapshot sent to the management service. Never persisted locally.
type StatusRecord struct {
	DeviceType     string `json:"deviceType"`
	CurrentVersion string `json:"currentVersion"`
	PendingVersion string `json:"pendingVersion,omitempty"`
	Status         Status `json:"status"`
	Substatus      string `json:"substatus,omitempty"`
	StartTime      string `json:"startTime,omitempty"`
	EndTime        string `json:"endTime,omitempty"`
}

// Channel submits status records to the management service.
type Channel interface {
	Submit(record StatusRecord) (err error)
}

// Reporter update status reporter.
type Reporter struct {
	deviceType string
	channel    Channel
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates new reporter instance.
func New(deviceType string, channel Channel) (reporter *Reporter) {
	return &Reporter{deviceType: deviceType, channel: channel}
}

// Report submits the record, stamping the device type. Submit errors are
// logged and swallowed.
func (reporter *Reporter) Report(record StatusRecord) {
	record.DeviceType = reporter.deviceType

	log.WithFields(log.Fields{
		"status":    record.Status,
		"substatus": record.Substatus,
		"pending":   record.PendingVersion,
	}).Debug("Report update status")

	if err := reporter.channel.Submit(record); err != nil {
		log.Warnf("Can't submit status record: %s", err)
	}
}
