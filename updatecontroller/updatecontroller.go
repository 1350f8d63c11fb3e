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

// Package updatecontroller drives one firmware update attempt end to end:
// metadata fetch, validation, download, verification, apply and reboot.
package updatecontroller

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/looplab/fsm"
	log "github.com/sirupsen/logrus"

	"github.com/aosedge/aos_firmwareupdater/config"
	"github.com/aosedge/aos_firmwareupdater/statusreporter"
	"github.com/aosedge/aos_firmwareupdater/utils/crc"
	"github.com/aosedge/aos_firmwareupdater/utils/semver"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

//
// Update state machine:
//
// stateIdle           -> candidate fetched                    -> stateCandidateFound
// stateCandidateFound -> scheme and version checks passed     -> stateValidating
// stateValidating     -> download status reported             -> stateDownloading
// stateDownloading    -> byte count matches expected size     -> stateVerifying
// stateVerifying      -> checksum matches (or none expected)  -> stateApplying
// stateApplying       -> applied, final status reported       -> stateRebooting (terminal)
//
// Any failure or rejection returns the machine to stateIdle; the session is
// discarded. Malformed metadata additionally clears the enabled gate for the
// rest of the process lifetime.
//

const (
	stateIdle           = "idle"
	stateCandidateFound = "candidateFound"
	stateValidating     = "validating"
	stateDownloading    = "downloading"
	stateVerifying      = "verifying"
	stateApplying       = "applying"
	stateRebooting      = "rebooting"
)

const (
	eventFound    = "found"
	eventValidate = "validate"
	eventDownload = "download"
	eventVerify   = "verify"
	eventApply    = "apply"
	eventReboot   = "reboot"
	eventReject   = "reject"
)

const secureScheme = "https"

/***********************************************************************************************************************
 * Vars
 **********************************************************************************************************************/

// ErrDownloadFailed is returned by the downloader when the transfer failed or
// delivered no bytes.
var ErrDownloadFailed = errors.New("download failed")

// ErrStorageFault is returned by the downloader when the local storage failed
// while receiving the payload.
var ErrStorageFault = errors.New("storage fault")

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Candidate describes an available firmware update. Immutable once fetched.
type Candidate struct {
	Version    string
	PackageURI string
	Size       uint64
	Checksum   string
}

// Connectivity provides management transport state.
type Connectivity interface {
	IsConnected() (connected bool)
	Poll()
}

// MetadataSource fetches the latest available firmware candidate.
// Nil candidate means nothing is available.
type MetadataSource interface {
	GetLatestCandidate() (candidate *Candidate, err error)
}

// ReportingChannel submits status records and exposes its lifecycle: the
// controller tears the channel down for the duration of the download and
// reestablishes it afterwards.
type ReportingChannel interface {
	Submit(record statusreporter.StatusRecord) (err error)
	Teardown() (err error)
	Reestablish() (err error)
}

// Downloader fetches the firmware payload. Outcomes are distinguished by
// ErrDownloadFailed, ErrStorageFault or the returned byte count.
type Downloader interface {
	Fetch(uri string) (size uint64, checksum uint32, err error)
	Discard() (err error)
}

// Applier writes the downloaded firmware to the boot storage. On success the
// device boots the new image on next restart.
type Applier interface {
	Apply(size uint64, checksum uint32) (err error)
}

// Rebooter restarts the system. Reboot is not expected to return.
type Rebooter interface {
	Reboot() (err error)
}

// Clock provides ISO-8601 UTC timestamps.
type Clock interface {
	NowUTC() (timestamp string)
}

// VersionStorage records the applied version so it survives the reboot.
type VersionStorage interface {
	SetPendingVersion(version string) (err error)
}

// Controller update controller instance.
type Controller struct {
	currentVersion string
	rebootDelay    time.Duration

	metadata   MetadataSource
	channel    ReportingChannel
	reporter   *statusreporter.Reporter
	downloader Downloader
	applier    Applier
	rebooter   Rebooter
	clock      Clock
	storage    VersionStorage

	sm      *fsm.FSM
	enabled bool
	session *session
}

// session tracks one update attempt. Owned solely by the controller,
// destroyed at each idle re-entry.
type session struct {
	candidate Candidate
	startTime string
	endTime   string
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates update controller instance.
func New(cfg *config.Config, currentVersion string, metadata MetadataSource, channel ReportingChannel,
	downloader Downloader, applier Applier, rebooter Rebooter, clock Clock, storage VersionStorage,
) (controller *Controller, err error) {
	log.WithField("currentVersion", currentVersion).Debug("Create update controller")

	controller = &Controller{
		currentVersion: currentVersion,
		rebootDelay:    cfg.RebootDelay.Duration,
		metadata:       metadata,
		channel:        channel,
		reporter:       statusreporter.New(cfg.DeviceType, channel),
		downloader:     downloader,
		applier:        applier,
		rebooter:       rebooter,
		clock:          clock,
		storage:        storage,
		enabled:        true,
	}

	controller.sm = fsm.NewFSM(stateIdle,
		fsm.Events{
			{Name: eventFound, Src: []string{stateIdle}, Dst: stateCandidateFound},
			{Name: eventValidate, Src: []string{stateCandidateFound}, Dst: stateValidating},
			{Name: eventDownload, Src: []string{stateValidating}, Dst: stateDownloading},
			{Name: eventVerify, Src: []string{stateDownloading}, Dst: stateVerifying},
			{Name: eventApply, Src: []string{stateVerifying}, Dst: stateApplying},
			{Name: eventReboot, Src: []string{stateApplying}, Dst: stateRebooting},
			{Name: eventReject, Src: []string{
				stateCandidateFound, stateValidating, stateDownloading, stateVerifying, stateApplying,
			}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, event *fsm.Event) {
				log.WithFields(log.Fields{"from": event.Src, "to": event.Dst}).Debug("Update state changed")
			},
		})

	return controller, nil
}

// ProcessTick evaluates the state machine once. It blocks for the whole
// attempt, including the download and apply calls: no connectivity servicing
// happens while a transfer is in flight. Collaborators own their deadlines,
// the controller has no timeout of its own.
func (controller *Controller) ProcessTick(ctx context.Context) {
	if !controller.enabled || !controller.sm.Is(stateIdle) {
		return
	}

	candidate, err := controller.metadata.GetLatestCandidate()
	if err != nil {
		log.Warnf("Can't fetch update metadata: %s", err)

		return
	}

	if candidate == nil {
		return
	}

	if candidate.Version == "" || candidate.PackageURI == "" {
		// Malformed metadata is the only permanent failure: further attempts
		// are pointless until the server-side package definition is fixed and
		// the service is restarted.
		controller.enabled = false

		log.WithFields(log.Fields{
			"version": candidate.Version, "uri": candidate.PackageURI,
		}).Error("Malformed update metadata, updates disabled")

		return
	}

	controller.session = &session{candidate: *candidate}
	controller.event(ctx, eventFound)

	if !controller.validate(ctx) {
		return
	}

	size, checksum, ok := controller.download(ctx)
	if !ok {
		return
	}

	if !controller.verify(ctx, checksum) {
		return
	}

	controller.applyAndReboot(ctx, size, checksum)
}

// ReportCurrent reports the currently installed version. Used at startup and
// when no update is pending.
func (controller *Controller) ReportCurrent() {
	controller.reporter.Report(statusreporter.StatusRecord{
		CurrentVersion: controller.currentVersion,
		Status:         statusreporter.StatusCurrent,
	})
}

// Enabled reports whether further update attempts are allowed.
func (controller *Controller) Enabled() (enabled bool) {
	return controller.enabled
}

// CurrentState returns the state machine state.
func (controller *Controller) CurrentState() (state string) {
	return controller.sm.Current()
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func (controller *Controller) event(ctx context.Context, name string) {
	if err := controller.sm.Event(ctx, name); err != nil {
		log.Errorf("Can't switch update state: %s", err)
	}
}

// validate checks the transport scheme and the version ordering. A stale or
// equal version is the common "nothing to do" path: silent discard, no report.
func (controller *Controller) validate(ctx context.Context) (ok bool) {
	candidate := controller.session.candidate

	uri, err := url.Parse(candidate.PackageURI)
	if err != nil || uri.Scheme != secureScheme {
		controller.fail(ctx, statusreporter.SubstatusURINotHTTPS)

		return false
	}

	if !semver.IsGreater(candidate.Version, controller.currentVersion) {
		log.WithFields(log.Fields{
			"candidate": candidate.Version, "current": controller.currentVersion,
		}).Debug("Candidate is not newer, nothing to do")

		controller.event(ctx, eventReject)
		controller.session = nil

		return false
	}

	controller.event(ctx, eventValidate)

	return true
}

// download reports the transfer start, frees the reporting channel for the
// duration of the transfer and classifies the outcome. The downloader is
// never given access to the reporting channel.
func (controller *Controller) download(ctx context.Context) (size uint64, checksum uint32, ok bool) {
	candidate := controller.session.candidate

	controller.session.startTime = controller.clock.NowUTC()

	controller.reporter.Report(statusreporter.StatusRecord{
		CurrentVersion: controller.currentVersion,
		PendingVersion: candidate.Version,
		Status:         statusreporter.StatusDownloading,
		StartTime:      controller.session.startTime,
	})

	controller.event(ctx, eventDownload)

	if err := controller.channel.Teardown(); err != nil {
		log.Warnf("Can't tear down reporting channel: %s", err)
	}

	size, checksum, err := controller.downloader.Fetch(candidate.PackageURI)

	if reestablishErr := controller.channel.Reestablish(); reestablishErr != nil {
		log.Warnf("Can't reestablish reporting channel: %s", reestablishErr)
	}

	switch {
	case errors.Is(err, ErrStorageFault):
		controller.fail(ctx, statusreporter.SubstatusDeviceError)

		return 0, 0, false

	case err != nil || size == 0:
		controller.fail(ctx, statusreporter.SubstatusDownloadFailed)

		return 0, 0, false

	case size != candidate.Size:
		controller.fail(ctx, statusreporter.SubstatusFileSizeNotMatch)

		return 0, 0, false
	}

	controller.event(ctx, eventVerify)

	return size, checksum, true
}

// verify compares the computed checksum against the expected one. An absent
// expected checksum passes implicitly: the operator accepts this trust gap.
func (controller *Controller) verify(ctx context.Context, checksum uint32) (ok bool) {
	candidate := controller.session.candidate

	if candidate.Checksum == "" {
		log.WithField("version", candidate.Version).Warn("No checksum in metadata, verification skipped")

		controller.event(ctx, eventApply)

		return true
	}

	if !crc.Matches(checksum, candidate.Checksum) {
		log.WithFields(log.Fields{
			"computed": checksum, "expected": candidate.Checksum,
		}).Error("Firmware checksum mismatch")

		if err := controller.downloader.Discard(); err != nil {
			log.Warnf("Can't discard downloaded payload: %s", err)
		}

		controller.fail(ctx, statusreporter.SubstatusVerifyFailed)

		return false
	}

	controller.event(ctx, eventApply)

	return true
}

// applyAndReboot invokes the apply primitive and restarts the system.
// This step is not retryable and not interruptible.
func (controller *Controller) applyAndReboot(ctx context.Context, size uint64, checksum uint32) {
	candidate := controller.session.candidate

	if err := controller.applier.Apply(size, checksum); err != nil {
		log.Errorf("Can't apply firmware: %s", err)

		controller.fail(ctx, statusreporter.SubstatusApplyFirmwareFailed)

		return
	}

	controller.session.endTime = controller.clock.NowUTC()

	controller.reporter.Report(statusreporter.StatusRecord{
		CurrentVersion: controller.currentVersion,
		PendingVersion: candidate.Version,
		Status:         statusreporter.StatusApplying,
		StartTime:      controller.session.startTime,
		EndTime:        controller.session.endTime,
	})

	if controller.storage != nil {
		// The update is already flashed: a failed record only makes the
		// reported version stale after reboot, it must not stop the restart.
		if err := controller.storage.SetPendingVersion(candidate.Version); err != nil {
			log.Warnf("Can't store pending version: %s", err)
		}
	}

	controller.event(ctx, eventReboot)

	controller.countdown()

	if err := controller.rebooter.Reboot(); err != nil {
		log.Errorf("Can't perform system reboot: %s", err)
	}
}

func (controller *Controller) countdown() {
	for remaining := int(controller.rebootDelay.Seconds()); remaining > 0; remaining-- {
		log.Infof("Rebooting in %d s", remaining)

		time.Sleep(1 * time.Second)
	}
}

// fail reports the error, discards the session and returns the machine to
// idle. All failures here are transient: the next poll tick retries against
// a fresh metadata fetch.
func (controller *Controller) fail(ctx context.Context, substatus string) {
	record := statusreporter.StatusRecord{
		CurrentVersion: controller.currentVersion,
		PendingVersion: controller.session.candidate.Version,
		Status:         statusreporter.StatusError,
		Substatus:      substatus,
		StartTime:      controller.session.startTime,
	}

	controller.reporter.Report(record)

	controller.event(ctx, eventReject)
	controller.session = nil
}
