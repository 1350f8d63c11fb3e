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

package downloader_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/aosedge/aos_firmwareupdater/config"
	"github.com/aosedge/aos_firmwareupdater/downloader"
	"github.com/aosedge/aos_firmwareupdater/updatecontroller"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

const testContent = "123456789"

const testContentCrc32 = 0xcbf43926

/***********************************************************************************************************************
 * Vars
 **********************************************************************************************************************/

var tmpDir string

/***********************************************************************************************************************
 * Main
 **********************************************************************************************************************/

func TestMain(m *testing.M) {
	var err error

	tmpDir, err = os.MkdirTemp("", "fw_")
	if err != nil {
		log.Fatalf("Error creating tmp dir: %s", err)
	}

	ret := m.Run()

	if err = os.RemoveAll(tmpDir); err != nil {
		log.Fatalf("Error removing tmp dir: %s", err)
	}

	os.Exit(ret)
}

/***********************************************************************************************************************
 * Tests
 **********************************************************************************************************************/

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testContent))
	}))
	defer server.Close()

	fwDownloader := newDownloader(t, "fetch")

	size, checksum, err := fwDownloader.Fetch(server.URL + "/firmware.bin")
	if err != nil {
		t.Fatalf("Can't fetch firmware: %s", err)
	}

	if size != uint64(len(testContent)) {
		t.Errorf("Wrong size: %d", size)
	}

	if checksum != testContentCrc32 {
		t.Errorf("Wrong checksum: %08x", checksum)
	}

	content, err := os.ReadFile(fwDownloader.ImagePath())
	if err != nil {
		t.Fatalf("Can't read staged image: %s", err)
	}

	if string(content) != testContent {
		t.Errorf("Wrong staged content: %s", content)
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fwDownloader := newDownloader(t, "notfound")

	if _, _, err := fwDownloader.Fetch(server.URL + "/firmware.bin"); !errors.Is(err, updatecontroller.ErrDownloadFailed) {
		t.Errorf("Expected download failed error, got: %v", err)
	}
}

func TestFetchUnreachable(t *testing.T) {
	fwDownloader := newDownloader(t, "unreachable")

	if _, _, err := fwDownloader.Fetch("http://127.0.0.1:1/firmware.bin"); !errors.Is(err, updatecontroller.ErrDownloadFailed) {
		t.Errorf("Expected download failed error, got: %v", err)
	}
}

func TestDiscard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testContent))
	}))
	defer server.Close()

	fwDownloader := newDownloader(t, "discard")

	if _, _, err := fwDownloader.Fetch(server.URL + "/firmware.bin"); err != nil {
		t.Fatalf("Can't fetch firmware: %s", err)
	}

	if err := fwDownloader.Discard(); err != nil {
		t.Fatalf("Can't discard payload: %s", err)
	}

	if _, err := os.Stat(fwDownloader.ImagePath()); !os.IsNotExist(err) {
		t.Error("Staged image should be removed")
	}

	// Discarding an already removed payload is not an error
	if err := fwDownloader.Discard(); err != nil {
		t.Errorf("Repeated discard failed: %s", err)
	}
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func newDownloader(t *testing.T, name string) (fwDownloader *downloader.Downloader) {
	t.Helper()

	fwDownloader, err := downloader.New(&config.Config{
		DownloadDir:   path.Join(tmpDir, name),
		ChecksumWidth: 32,
	})
	if err != nil {
		t.Fatalf("Can't create downloader: %s", err)
	}

	return fwDownloader
}
