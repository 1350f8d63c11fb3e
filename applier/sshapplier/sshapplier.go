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

// Package sshapplier pushes the staged firmware image to a remote target and
// flashes it there. Intended for development boards without local flash
// access.
package sshapplier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aoscloud/aos_common/aoserrors"
	log "github.com/sirupsen/logrus"
	"github.com/tmc/scp"
	"golang.org/x/crypto/ssh"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Applier ssh applier instance.
type Applier struct {
	imagePath string
	cfg       moduleConfig
}

type moduleConfig struct {
	Host     string   `json:"host"`
	User     string   `json:"user"`
	Password string   `json:"password"`
	DestPath string   `json:"destPath"`
	Commands []string `json:"commands"`
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates ssh applier instance.
func New(imagePath string, params json.RawMessage) (applier *Applier, err error) {
	log.Debug("Create ssh applier")

	applier = &Applier{imagePath: imagePath}

	if err = json.Unmarshal(params, &applier.cfg); err != nil {
		return nil, aoserrors.Wrap(err)
	}

	return applier, nil
}

// Apply copies the staged image to the remote target and runs the configured
// flash commands there.
func (applier *Applier) Apply(size uint64, checksum uint32) (err error) {
	log.WithFields(log.Fields{
		"host": applier.cfg.Host, "size": size, "checksum": checksum,
	}).Info("Apply firmware over ssh")

	config := &ssh.ClientConfig{
		User:            applier.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(applier.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // development targets have no known host key
	}

	client, err := ssh.Dial("tcp", applier.cfg.Host, config)
	if err != nil {
		return aoserrors.Wrap(err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return aoserrors.Wrap(err)
	}
	defer session.Close()

	log.WithFields(log.Fields{"src": applier.imagePath, "dst": applier.cfg.DestPath}).Debug("Copy image")

	if err = scp.CopyPath(applier.imagePath, applier.cfg.DestPath, session); err != nil {
		return aoserrors.Wrap(err)
	}

	if err = applier.runCommands(client); err != nil {
		return aoserrors.Wrap(err)
	}

	return nil
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func (applier *Applier) runCommands(client *ssh.Client) (err error) {
	session, err := client.NewSession()
	if err != nil {
		return aoserrors.Wrap(err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return aoserrors.Wrap(err)
	}

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr

	if err = session.Shell(); err != nil {
		return aoserrors.Wrap(err)
	}

	for _, command := range applier.cfg.Commands {
		log.WithField("command", command).Debug("Remote command")

		if _, err = fmt.Fprintf(stdin, "%s\n", command); err != nil {
			return aoserrors.Wrap(err)
		}
	}

	if _, err = fmt.Fprintf(stdin, "%s\n", "exit"); err != nil {
		return aoserrors.Wrap(err)
	}

	if err = session.Wait(); err != nil {
		return aoserrors.Wrap(err)
	}

	return nil
}
