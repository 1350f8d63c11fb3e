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

package poller_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aosedge/aos_firmwareupdater/poller"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

type testController struct {
	tickCount int32
}

type testConnectivity struct {
	connected int32
	pollCount int32
}

/***********************************************************************************************************************
 * Tests
 **********************************************************************************************************************/

func TestTicksWhileConnected(t *testing.T) {
	controller := &testController{}
	connectivity := &testConnectivity{connected: 1}

	updatePoller := poller.New(controller, connectivity, 10*time.Millisecond)
	defer updatePoller.Close()

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&controller.tickCount) == 0 {
		t.Error("Controller was not ticked")
	}

	if atomic.LoadInt32(&connectivity.pollCount) == 0 {
		t.Error("Connectivity was not polled")
	}
}

func TestIdlesWhileDisconnected(t *testing.T) {
	controller := &testController{}
	connectivity := &testConnectivity{}

	updatePoller := poller.New(controller, connectivity, 10*time.Millisecond)
	defer updatePoller.Close()

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&controller.tickCount) != 0 {
		t.Error("Controller should not be ticked while disconnected")
	}

	// Connectivity is still serviced so the transport can reconnect.
	if atomic.LoadInt32(&connectivity.pollCount) == 0 {
		t.Error("Connectivity was not polled")
	}

	atomic.StoreInt32(&connectivity.connected, 1)

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&controller.tickCount) == 0 {
		t.Error("Controller was not ticked after connect")
	}
}

func TestClose(t *testing.T) {
	controller := &testController{}
	connectivity := &testConnectivity{connected: 1}

	updatePoller := poller.New(controller, connectivity, 10*time.Millisecond)
	updatePoller.Close()

	count := atomic.LoadInt32(&controller.tickCount)

	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&controller.tickCount) != count {
		t.Error("Controller ticked after close")
	}
}

/***********************************************************************************************************************
 * Interfaces
 **********************************************************************************************************************/

func (controller *testController) ProcessTick(ctx context.Context) {
	atomic.AddInt32(&controller.tickCount, 1)
}

func (connectivity *testConnectivity) IsConnected() (connected bool) {
	return atomic.LoadInt32(&connectivity.connected) == 1
}

func (connectivity *testConnectivity) Poll() {
	atomic.AddInt32(&connectivity.pollCount, 1)
}
