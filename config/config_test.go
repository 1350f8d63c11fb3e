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

package config_test

import (
	"log"
	"os"
	"path"
	"testing"
	"time"

	"github.com/aosedge/aos_firmwareupdater/config"
)

/***********************************************************************************************************************
 * Vars
 **********************************************************************************************************************/

var cfg *config.Config

/***********************************************************************************************************************
 * Main
 **********************************************************************************************************************/

func TestMain(m *testing.M) {
	if err := setup(); err != nil {
		log.Fatalf("Setup error: %s", err)
	}

	ret := m.Run()

	if err := cleanup(); err != nil {
		log.Fatalf("Cleanup error: %s", err)
	}

	os.Exit(ret)
}

/***********************************************************************************************************************
 * Tests
 **********************************************************************************************************************/

func TestGetCredentials(t *testing.T) {
	if cfg.ServerURL != "wss://localhost:8090" {
		t.Errorf("Wrong server URL: %s", cfg.ServerURL)
	}

	if cfg.ID != "device1" {
		t.Errorf("Wrong ID: %s", cfg.ID)
	}

	if cfg.DeviceType != "board" {
		t.Errorf("Wrong device type: %s", cfg.DeviceType)
	}

	if cfg.CACert != "ca.pem" {
		t.Errorf("Wrong CA cert: %s", cfg.CACert)
	}
}

func TestDirs(t *testing.T) {
	if cfg.WorkingDir != "/var/aos/firmwareupdater" {
		t.Errorf("Wrong working dir: %s", cfg.WorkingDir)
	}

	if cfg.DownloadDir != "/var/aos/firmwareupdater/download" {
		t.Errorf("Wrong download dir: %s", cfg.DownloadDir)
	}
}

func TestDurations(t *testing.T) {
	if cfg.PollInterval.Duration != 1*time.Second {
		t.Errorf("Wrong poll interval: %s", cfg.PollInterval.Duration)
	}

	if cfg.RebootDelay.Duration != 10*time.Second {
		t.Errorf("Wrong reboot delay: %s", cfg.RebootDelay.Duration)
	}
}

func TestApplier(t *testing.T) {
	if cfg.Applier.Plugin != "dualpart" {
		t.Errorf("Wrong applier plugin: %s", cfg.Applier.Plugin)
	}

	if len(cfg.Applier.Params) == 0 {
		t.Error("Applier params should not be empty")
	}
}

func TestChecksumWidth(t *testing.T) {
	if cfg.ChecksumWidth != 16 {
		t.Errorf("Wrong checksum width: %d", cfg.ChecksumWidth)
	}
}

func TestMigrationDefaults(t *testing.T) {
	if cfg.Migration.MigrationPath != "/usr/share/aos/firmwareupdater/migration" {
		t.Errorf("Wrong migration path: %s", cfg.Migration.MigrationPath)
	}

	if cfg.Migration.MergedMigrationPath != "/var/aos/firmwareupdater/mergedMigration" {
		t.Errorf("Wrong merged migration path: %s", cfg.Migration.MergedMigrationPath)
	}
}

func TestDefaults(t *testing.T) {
	if err := saveConfigFile("minimal.cfg", `{"workingDir": "/tmp/aos"}`); err != nil {
		t.Fatalf("Can't create config file: %s", err)
	}

	minimal, err := config.New("tmp/minimal.cfg")
	if err != nil {
		t.Fatalf("Can't create config: %s", err)
	}

	if minimal.PollInterval.Duration != 1*time.Second {
		t.Errorf("Wrong default poll interval: %s", minimal.PollInterval.Duration)
	}

	if minimal.RebootDelay.Duration != 5*time.Second {
		t.Errorf("Wrong default reboot delay: %s", minimal.RebootDelay.Duration)
	}

	if minimal.ChecksumWidth != 32 {
		t.Errorf("Wrong default checksum width: %d", minimal.ChecksumWidth)
	}

	if minimal.DownloadDir != "/tmp/aos/download" {
		t.Errorf("Wrong default download dir: %s", minimal.DownloadDir)
	}
}

func TestWrongConfig(t *testing.T) {
	if err := saveConfigFile("wrong.cfg", ` SOME WRONG JSON FORMAT
	}]
}`); err != nil {
		t.Fatalf("Can't create config file: %s", err)
	}

	if _, err := config.New("tmp/wrong.cfg"); err == nil {
		t.Error("Error expected for wrong config")
	}
}

func TestNotExistConfig(t *testing.T) {
	if _, err := config.New("tmp/notexist.cfg"); err == nil {
		t.Error("Error expected for non existing config")
	}
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func saveConfigFile(configName string, configContent string) (err error) {
	return os.WriteFile(path.Join("tmp", configName), []byte(configContent), 0o600)
}

func createConfigFile() (err error) {
	configContent := `{
	"serverUrl": "wss://localhost:8090",
	"id": "device1",
	"deviceType": "board",
	"caCert": "ca.pem",
	"workingDir": "/var/aos/firmwareupdater",
	"pollInterval": "1s",
	"rebootDelay": "10s",
	"checksumWidth": 16,
	"applier": {
		"plugin": "dualpart",
		"params": {
			"partitions": ["/dev/mmcblk0p2", "/dev/mmcblk0p3"],
			"envFile": "/var/aos/uboot.env"
		}
	}
}`

	return saveConfigFile("aos_firmwareupdater.cfg", configContent)
}

func setup() (err error) {
	if err = os.MkdirAll("tmp", 0o755); err != nil {
		return err
	}

	if err = createConfigFile(); err != nil {
		return err
	}

	if cfg, err = config.New("tmp/aos_firmwareupdater.cfg"); err != nil {
		return err
	}

	return nil
}

func cleanup() (err error) {
	return os.RemoveAll("tmp")
}
