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

// Package poller drives the update controller at a fixed interval while
// connectivity is established.
package poller

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Controller processes one update evaluation per tick.
type Controller interface {
	ProcessTick(ctx context.Context)
}

// Connectivity provides management transport state. Poll must be invoked
// regularly for outbound reports to actually flush.
type Connectivity interface {
	IsConnected() (connected bool)
	Poll()
}

// Poller instance.
type Poller struct {
	controller   Controller
	connectivity Connectivity
	interval     time.Duration

	closeChannel chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates poller instance and starts ticking.
func New(controller Controller, connectivity Connectivity, interval time.Duration) (poller *Poller) {
	log.WithField("interval", interval).Debug("Create poller")

	poller = &Poller{
		controller:   controller,
		connectivity: connectivity,
		interval:     interval,
		closeChannel: make(chan struct{}),
	}

	poller.wg.Add(1)
	go poller.run()

	return poller
}

// Close stops the poller.
func (poller *Poller) Close() {
	log.Debug("Close poller")

	poller.closeOnce.Do(func() {
		close(poller.closeChannel)
	})

	poller.wg.Wait()
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

// run services connectivity and the controller on the same goroutine: the
// controller tick blocks for the whole update attempt and there is no
// concurrent tick re-entry.
func (poller *Poller) run() {
	defer poller.wg.Done()

	ticker := time.NewTicker(poller.interval)
	defer ticker.Stop()

	for {
		select {
		case <-poller.closeChannel:
			return

		case <-ticker.C:
			poller.connectivity.Poll()

			if !poller.connectivity.IsConnected() {
				continue
			}

			poller.controller.ProcessTick(context.Background())
		}
	}
}
