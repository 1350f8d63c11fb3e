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

// Package dualpart applies the staged firmware image to the inactive slot of
// a dual partition scheme and switches the boot order in a u-boot style
// environment file.
package dualpart

import (
	"encoding/json"
	"io"
	"os"

	"github.com/aoscloud/aos_common/aoserrors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/aosedge/aos_firmwareupdater/utils/crc"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

const numPartitions = 2

// Environment variables consumed by the bootloader.
const (
	fwMainPart = "fw_main_part"
	fwBootOk   = "fw_boot_ok"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Applier dual partition applier instance.
type Applier struct {
	imagePath string
	width     crc.Width
	cfg       moduleConfig

	env *ini.File
}

type moduleConfig struct {
	Partitions []string `json:"partitions"`
	EnvFile    string   `json:"envFile"`
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates dual partition applier instance.
func New(imagePath string, width crc.Width, params json.RawMessage) (applier *Applier, err error) {
	log.Debug("Create dualpart applier")

	applier = &Applier{imagePath: imagePath, width: width}

	if err = json.Unmarshal(params, &applier.cfg); err != nil {
		return nil, aoserrors.Wrap(err)
	}

	if len(applier.cfg.Partitions) != numPartitions {
		return nil, aoserrors.New("num of configured partitions should be 2")
	}

	if applier.cfg.EnvFile == "" {
		return nil, aoserrors.New("env file should be configured")
	}

	// Unset PrettyFormat to avoid alignment
	ini.PrettyFormat = false

	if err = applier.loadEnv(); err != nil {
		return nil, aoserrors.Wrap(err)
	}

	return applier, nil
}

// Apply writes the staged image to the inactive partition, verifies the
// written bytes and switches the boot order. The device boots the new image
// on next restart.
func (applier *Applier) Apply(size uint64, checksum uint32) (err error) {
	current, err := applier.mainBoot()
	if err != nil {
		return aoserrors.Wrap(err)
	}

	target := (current + 1) % numPartitions

	log.WithFields(log.Fields{
		"partition": applier.cfg.Partitions[target], "size": size, "checksum": checksum,
	}).Info("Apply firmware")

	info, err := os.Stat(applier.imagePath)
	if err != nil {
		return aoserrors.Wrap(err)
	}

	if uint64(info.Size()) != size {
		return aoserrors.Errorf("staged image size mismatch: %d != %d", info.Size(), size)
	}

	if err = applier.writePartition(applier.cfg.Partitions[target]); err != nil {
		return aoserrors.Wrap(err)
	}

	if err = applier.verifyPartition(applier.cfg.Partitions[target], size, checksum); err != nil {
		return aoserrors.Wrap(err)
	}

	applier.env.Section("").Key(fwMainPart).SetValue(intToString(target))
	applier.env.Section("").Key(fwBootOk).SetValue("0")

	if err = applier.env.SaveTo(applier.cfg.EnvFile); err != nil {
		return aoserrors.Wrap(err)
	}

	return nil
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func (applier *Applier) loadEnv() (err error) {
	if _, err = os.Stat(applier.cfg.EnvFile); os.IsNotExist(err) {
		file, err := os.Create(applier.cfg.EnvFile)
		if err != nil {
			return aoserrors.Wrap(err)
		}

		file.Close()
	}

	if applier.env, err = ini.Load(applier.cfg.EnvFile); err != nil {
		return aoserrors.Wrap(err)
	}

	return nil
}

func (applier *Applier) mainBoot() (index int, err error) {
	key := applier.env.Section("").Key(fwMainPart)

	if key.String() == "" {
		return 0, nil
	}

	if index, err = key.Int(); err != nil {
		return 0, aoserrors.Wrap(err)
	}

	if index < 0 || index >= numPartitions {
		return 0, aoserrors.Errorf("boot index out of range: %d", index)
	}

	return index, nil
}

func (applier *Applier) writePartition(device string) (err error) {
	image, err := os.Open(applier.imagePath)
	if err != nil {
		return aoserrors.Wrap(err)
	}
	defer image.Close()

	part, err := os.OpenFile(device, os.O_WRONLY, 0o600)
	if err != nil {
		return aoserrors.Wrap(err)
	}
	defer part.Close()

	if _, err = io.Copy(part, image); err != nil {
		return aoserrors.Wrap(err)
	}

	if err = part.Sync(); err != nil {
		return aoserrors.Wrap(err)
	}

	return nil
}

// verifyPartition reads the written region back and compares its integrity
// code with the one of the staged image.
func (applier *Applier) verifyPartition(device string, size uint64, checksum uint32) (err error) {
	part, err := os.Open(device)
	if err != nil {
		return aoserrors.Wrap(err)
	}
	defer part.Close()

	verifier, err := crc.NewVerifier(applier.width)
	if err != nil {
		return aoserrors.Wrap(err)
	}

	if _, err = io.CopyN(verifier, part, int64(size)); err != nil {
		return aoserrors.Wrap(err)
	}

	if verifier.Sum() != checksum {
		return aoserrors.Errorf("written image checksum mismatch: %08x != %08x", verifier.Sum(), checksum)
	}

	return nil
}

func intToString(value int) (str string) {
	return [...]string{"0", "1"}[value]
}
