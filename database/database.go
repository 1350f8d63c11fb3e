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

// Package database stores the installed and pending firmware versions so that
// they survive the post-apply reboot.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aoscloud/aos_common/aoserrors"
	"github.com/aoscloud/aos_common/migration"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	log "github.com/sirupsen/logrus"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

const (
	busyTimeout = 60000
	journalMode = "WAL"
	syncMode    = "NORMAL"
)

const dbVersion = 1

const folderPerm = 0o755

/***********************************************************************************************************************
 * Vars
 **********************************************************************************************************************/

// ErrNotExist is returned when requested entry not exist in DB.
var ErrNotExist = errors.New("entry doesn't exist")

// ErrMigrationFailed is returned if migration was failed and db returned to the previous state.
var ErrMigrationFailed = errors.New("database migration failed")

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Database structure with database information.
type Database struct {
	sql *sql.DB
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates new database handle.
func New(name string, migrationPath string, mergedMigrationPath string) (db *Database, err error) {
	return newDatabase(name, migrationPath, mergedMigrationPath, dbVersion)
}

// GetFirmwareVersion returns the installed firmware version.
func (db *Database) GetFirmwareVersion() (version string, err error) {
	return db.getConfigValue("firmwareVersion")
}

// SetFirmwareVersion stores the installed firmware version.
func (db *Database) SetFirmwareVersion(version string) (err error) {
	return db.setConfigValue("firmwareVersion", version)
}

// GetPendingVersion returns the version applied right before the last reboot request.
func (db *Database) GetPendingVersion() (version string, err error) {
	return db.getConfigValue("pendingVersion")
}

// SetPendingVersion stores the version applied right before the reboot request.
// Empty string clears the record.
func (db *Database) SetPendingVersion(version string) (err error) {
	return db.setConfigValue("pendingVersion", version)
}

// Close closes database.
func (db *Database) Close() {
	db.sql.Close()
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func newDatabase(name string, migrationPath string, mergedMigrationPath string, version uint) (
	db *Database, err error,
) {
	log.WithField("name", name).Debug("Open database")

	if _, err = os.Stat(filepath.Dir(name)); err != nil {
		if !os.IsNotExist(err) {
			return db, aoserrors.Wrap(err)
		}

		if err = os.MkdirAll(filepath.Dir(name), folderPerm); err != nil {
			return db, aoserrors.Wrap(err)
		}
	}

	sqlite, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=%s&_sync=%s",
		name, busyTimeout, journalMode, syncMode))
	if err != nil {
		return db, aoserrors.Wrap(err)
	}

	db = &Database{sqlite}

	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if err = migration.MergeMigrationFiles(migrationPath, mergedMigrationPath); err != nil {
		return db, aoserrors.Wrap(err)
	}

	exists, err := db.isTableExist("config")
	if err != nil {
		return db, aoserrors.Wrap(err)
	}

	if !exists {
		// Set database version if database not exist
		if err = migration.SetDatabaseVersion(sqlite, migrationPath, version); err != nil {
			log.Errorf("Error forcing database version. Err: %s", err)

			return db, ErrMigrationFailed
		}
	} else {
		if err = migration.DoMigrate(db.sql, mergedMigrationPath, version); err != nil {
			log.Errorf("Error during database migration. Err: %s", err)

			return db, ErrMigrationFailed
		}
	}

	if err = db.createConfigTable(); err != nil {
		return db, aoserrors.Wrap(err)
	}

	return db, nil
}

func (db *Database) isTableExist(name string) (result bool, err error) {
	rows, err := db.sql.Query("SELECT * FROM sqlite_master WHERE name = ? and type='table'", name)
	if err != nil {
		return false, aoserrors.Wrap(err)
	}
	defer rows.Close()

	result = rows.Next()

	return result, aoserrors.Wrap(rows.Err())
}

func (db *Database) createConfigTable() (err error) {
	exist, err := db.isTableExist("config")
	if err != nil {
		return aoserrors.Wrap(err)
	}

	if exist {
		return nil
	}

	log.Info("Create config table")

	if _, err = db.sql.Exec(
		`CREATE TABLE config (
			firmwareVersion TEXT,
			pendingVersion TEXT)`); err != nil {
		return aoserrors.Wrap(err)
	}

	if _, err = db.sql.Exec(
		`INSERT INTO config (
			firmwareVersion,
			pendingVersion) values(?, ?)`, "", ""); err != nil {
		return aoserrors.Wrap(err)
	}

	return nil
}

func (db *Database) getConfigValue(name string) (value string, err error) {
	stmt, err := db.sql.Prepare(fmt.Sprintf("SELECT %s FROM config", name))
	if err != nil {
		return "", aoserrors.Wrap(err)
	}
	defer stmt.Close()

	if err = stmt.QueryRow().Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotExist
		}

		return "", aoserrors.Wrap(err)
	}

	return value, nil
}

func (db *Database) setConfigValue(name string, value string) (err error) {
	result, err := db.sql.Exec(fmt.Sprintf("UPDATE config SET %s = ?", name), value)
	if err != nil {
		return aoserrors.Wrap(err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return aoserrors.Wrap(err)
	}

	if count == 0 {
		return ErrNotExist
	}

	return nil
}
