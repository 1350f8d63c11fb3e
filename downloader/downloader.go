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

// Package downloader fetches the firmware package into the staging area and
// computes its integrity code.
package downloader

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"syscall"

	"github.com/aoscloud/aos_common/aoserrors"
	"github.com/cavaliergopher/grab/v3"
	log "github.com/sirupsen/logrus"

	"github.com/aosedge/aos_firmwareupdater/config"
	"github.com/aosedge/aos_firmwareupdater/updatecontroller"
	"github.com/aosedge/aos_firmwareupdater/utils/crc"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

const firmwareFileName = "firmware.bin"

const dirPerm = 0o755

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// Downloader firmware downloader instance.
type Downloader struct {
	imagePath string
	width     crc.Width
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates downloader instance.
func New(cfg *config.Config) (downloader *Downloader, err error) {
	log.WithField("downloadDir", cfg.DownloadDir).Debug("Create downloader")

	if err = os.MkdirAll(cfg.DownloadDir, dirPerm); err != nil {
		return nil, aoserrors.Wrap(err)
	}

	return &Downloader{
		imagePath: path.Join(cfg.DownloadDir, firmwareFileName),
		width:     crc.Width(cfg.ChecksumWidth),
	}, nil
}

// ImagePath returns the staging location of the downloaded firmware. The
// applier reads the image from the same location.
func (downloader *Downloader) ImagePath() (imagePath string) {
	return downloader.imagePath
}

// Fetch downloads the firmware package and returns the received byte count
// with the integrity code computed over the payload.
func (downloader *Downloader) Fetch(uri string) (size uint64, checksum uint32, err error) {
	log.WithFields(log.Fields{"uri": uri, "path": downloader.imagePath}).Info("Download firmware package")

	request, err := grab.NewRequest(downloader.imagePath, uri)
	if err != nil {
		log.Errorf("Invalid download request: %s", err)

		return 0, 0, updatecontroller.ErrDownloadFailed
	}

	response := grab.NewClient().Do(request)

	<-response.Done

	if err = response.Err(); err != nil {
		log.Errorf("Download error: %s", err)

		return 0, 0, classifyError(err)
	}

	if size, checksum, err = downloader.checksumFile(response.Filename); err != nil {
		log.Errorf("Can't read downloaded file: %s", err)

		return 0, 0, updatecontroller.ErrStorageFault
	}

	log.WithFields(log.Fields{"size": size, "checksum": checksum}).Debug("Download finished")

	return size, checksum, nil
}

// Discard removes the staged payload.
func (downloader *Downloader) Discard() (err error) {
	log.WithField("path", downloader.imagePath).Debug("Discard downloaded payload")

	if err = os.Remove(downloader.imagePath); err != nil && !os.IsNotExist(err) {
		return aoserrors.Wrap(err)
	}

	return nil
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

// checksumFile streams the staged file through the verifier without
// buffering it wholesale.
func (downloader *Downloader) checksumFile(fileName string) (size uint64, checksum uint32, err error) {
	file, err := os.Open(fileName)
	if err != nil {
		return 0, 0, aoserrors.Wrap(err)
	}
	defer file.Close()

	verifier, err := crc.NewVerifier(downloader.width)
	if err != nil {
		return 0, 0, aoserrors.Wrap(err)
	}

	written, err := io.Copy(verifier, file)
	if err != nil {
		return 0, 0, aoserrors.Wrap(err)
	}

	return uint64(written), verifier.Sum(), nil
}

func classifyError(err error) error {
	var pathErr *fs.PathError

	if errors.As(err, &pathErr) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EIO) {
		return updatecontroller.ErrStorageFault
	}

	return updatecontroller.ErrDownloadFailed
}
