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

package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/aosedge/aos_firmwareupdater/applier/dualpart"
	"github.com/aosedge/aos_firmwareupdater/applier/sshapplier"
	"github.com/aosedge/aos_firmwareupdater/cloudclient"
	"github.com/aosedge/aos_firmwareupdater/config"
	"github.com/aosedge/aos_firmwareupdater/database"
	"github.com/aosedge/aos_firmwareupdater/downloader"
	"github.com/aosedge/aos_firmwareupdater/poller"
	"github.com/aosedge/aos_firmwareupdater/rebooter/systemdrebooter"
	"github.com/aosedge/aos_firmwareupdater/updatecontroller"
	"github.com/aosedge/aos_firmwareupdater/utils/clock"
	"github.com/aosedge/aos_firmwareupdater/utils/crc"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

const dbFileName = "firmwareupdater.db"

// Applier plugins.
const (
	dualPartApplierPlugin = "dualpart"
	sshApplierPlugin      = "ssh"
)

/***********************************************************************************************************************
 * Vars
 **********************************************************************************************************************/

// GitSummary provided by govvv at compile-time.
var GitSummary string //nolint:gochecknoglobals // set at compile time

/***********************************************************************************************************************
 * Init
 **********************************************************************************************************************/

func init() {
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: false,
		TimestampFormat:  "2006-01-02 15:04:05.000",
		FullTimestamp:    true,
	})
	log.SetOutput(os.Stdout)
}

/***********************************************************************************************************************
 * Main
 **********************************************************************************************************************/

func main() {
	configFile := flag.String("c", "aos_firmwareupdater.cfg", "path to config file")
	strLogLevel := flag.String("v", "info", `log level: "debug", "info", "warn", "error", "fatal", "panic"`)

	flag.Parse()

	logLevel, err := log.ParseLevel(*strLogLevel)
	if err != nil {
		log.Fatalf("Error: %s", err)
	}

	log.SetLevel(logLevel)

	log.WithFields(log.Fields{"configFile": *configFile, "version": GitSummary}).Info("Start firmware updater")

	cfg, err := config.New(*configFile)
	if err != nil {
		log.Fatalf("Can't open config file: %s", err)
	}

	dbFile := path.Join(cfg.WorkingDir, dbFileName)

	db, err := database.New(dbFile, cfg.Migration.MigrationPath, cfg.Migration.MergedMigrationPath)
	if err != nil {
		if errors.Is(err, database.ErrMigrationFailed) {
			log.Warning("Unsupported database version")
			cleanup(dbFile)

			db, err = database.New(dbFile, cfg.Migration.MigrationPath, cfg.Migration.MergedMigrationPath)
		}

		if err != nil {
			log.Fatalf("Can't create database: %s", err)
		}
	}
	defer db.Close()

	currentVersion, err := resolveCurrentVersion(db)
	if err != nil {
		log.Fatalf("Can't resolve firmware version: %s", err)
	}

	log.WithField("version", currentVersion).Info("Current firmware")

	client, err := cloudclient.New(cfg)
	if err != nil {
		log.Fatalf("Can't create cloud client: %s", err)
	}
	defer client.Close()

	fwDownloader, err := downloader.New(cfg)
	if err != nil {
		log.Fatalf("Can't create downloader: %s", err)
	}

	fwApplier, err := createApplier(cfg, fwDownloader.ImagePath())
	if err != nil {
		log.Fatalf("Can't create applier: %s", err)
	}

	controller, err := updatecontroller.New(cfg, currentVersion, client, client, fwDownloader, fwApplier,
		&systemdrebooter.SystemdRebooter{}, &clock.SystemClock{}, db)
	if err != nil {
		log.Fatalf("Can't create update controller: %s", err)
	}

	controller.ReportCurrent()

	updatePoller := poller.New(controller, client, cfg.PollInterval.Duration)
	defer updatePoller.Close()

	// Handle SIGTERM
	terminateChannel := make(chan os.Signal, 1)
	signal.Notify(terminateChannel, os.Interrupt, syscall.SIGTERM)

	<-terminateChannel
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func cleanup(dbFile string) {
	log.WithField("file", dbFile).Debug("Delete DB file")

	if err := os.RemoveAll(dbFile); err != nil {
		log.Fatalf("Can't cleanup database: %s", err)
	}
}

// resolveCurrentVersion returns the installed firmware version. A pending
// version found at startup means the post-apply reboot completed: it becomes
// the installed one.
func resolveCurrentVersion(db *database.Database) (version string, err error) {
	pending, err := db.GetPendingVersion()
	if err != nil {
		return "", err
	}

	if pending != "" {
		log.WithField("version", pending).Info("Pending firmware booted")

		if err = db.SetFirmwareVersion(pending); err != nil {
			return "", err
		}

		if err = db.SetPendingVersion(""); err != nil {
			return "", err
		}

		return pending, nil
	}

	return db.GetFirmwareVersion()
}

func createApplier(cfg *config.Config, imagePath string) (fwApplier updatecontroller.Applier, err error) {
	switch cfg.Applier.Plugin {
	case dualPartApplierPlugin:
		return dualpart.New(imagePath, crc.Width(cfg.ChecksumWidth), cfg.Applier.Params)

	case sshApplierPlugin:
		return sshapplier.New(imagePath, cfg.Applier.Params)

	default:
		return nil, errors.New("unknown applier plugin: " + cfg.Applier.Plugin)
	}
}
