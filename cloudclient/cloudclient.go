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

// Package cloudclient implements the management channel: firmware metadata
// requests and status submission over a websocket connection. The update
// controller tears the connection down around the download to free the
// transport and reestablishes it afterwards.
package cloudclient

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aoscloud/aos_common/aoserrors"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/aosedge/aos_firmwareupdater/config"
	"github.com/aosedge/aos_firmwareupdater/statusreporter"
	"github.com/aosedge/aos_firmwareupdater/updatecontroller"
)

/***********************************************************************************************************************
 * Consts
 **********************************************************************************************************************/

const (
	writeSocketTimeout = 10 * time.Second
	readSocketTimeout  = 10 * time.Second
)

// Message types.
const (
	DesiredFirmwareReqType = "getDesiredFirmware"
	DesiredFirmwareType    = "desiredFirmware"
	StatusType             = "status"
)

/***********************************************************************************************************************
 * Types
 **********************************************************************************************************************/

// MessageHeader management message header.
type MessageHeader struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// DesiredFirmwareReq desired firmware request.
type DesiredFirmwareReq struct {
	MessageHeader
	DeviceID string `json:"deviceId"`
}

// FirmwareInfo desired firmware metadata.
type FirmwareInfo struct {
	Version    string `json:"version"`
	PackageURI string `json:"packageUri"`
	Size       uint64 `json:"size"`
	Checksum   string `json:"checksum,omitempty"`
}

// DesiredFirmwareRsp desired firmware response. Nil firmware means no update
// is available.
type DesiredFirmwareRsp struct {
	MessageHeader
	Firmware *FirmwareInfo `json:"firmware"`
}

// StatusMessage update status message.
type StatusMessage struct {
	MessageHeader
	statusreporter.StatusRecord
}

// Client management channel client.
type Client struct {
	sync.Mutex

	url       string
	deviceID  string
	tlsConfig *tls.Config

	connection *websocket.Conn
}

/***********************************************************************************************************************
 * Public
 **********************************************************************************************************************/

// New creates client instance and tries to establish the connection. If the
// service is not reachable, the client stays disconnected and Poll retries.
func New(cfg *config.Config) (client *Client, err error) {
	log.WithField("url", cfg.ServerURL).Debug("Create cloud client")

	client = &Client{url: cfg.ServerURL, deviceID: cfg.ID}

	if cfg.CACert != "" {
		if client.tlsConfig, err = createTLSConfig(cfg.CACert); err != nil {
			return nil, aoserrors.Wrap(err)
		}
	}

	if err = client.connect(); err != nil {
		log.Warnf("Can't connect to management service: %s", err)
	}

	return client, nil
}

// IsConnected returns true if the management connection is established.
func (client *Client) IsConnected() (connected bool) {
	client.Lock()
	defer client.Unlock()

	return client.connection != nil
}

// Poll services the connection: reconnects if it is down.
func (client *Client) Poll() {
	client.Lock()
	defer client.Unlock()

	if client.connection != nil {
		return
	}

	if err := client.connect(); err != nil {
		log.Debugf("Reconnect failed: %s", err)
	}
}

// GetLatestCandidate requests the desired firmware from the management
// service. Nil candidate means the device is up to date.
func (client *Client) GetLatestCandidate() (candidate *updatecontroller.Candidate, err error) {
	client.Lock()
	defer client.Unlock()

	if client.connection == nil {
		return nil, aoserrors.New("not connected")
	}

	request := DesiredFirmwareReq{
		MessageHeader: MessageHeader{Type: DesiredFirmwareReqType},
		DeviceID:      client.deviceID,
	}

	if err = client.writeJSON(request); err != nil {
		client.disconnect()

		return nil, aoserrors.Wrap(err)
	}

	var response DesiredFirmwareRsp

	if err = client.connection.SetReadDeadline(time.Now().Add(readSocketTimeout)); err != nil {
		return nil, aoserrors.Wrap(err)
	}

	if err = client.connection.ReadJSON(&response); err != nil {
		client.disconnect()

		return nil, aoserrors.Wrap(err)
	}

	if response.Type != DesiredFirmwareType {
		return nil, aoserrors.Errorf("unexpected message type: %s", response.Type)
	}

	if response.Error != "" {
		return nil, aoserrors.New(response.Error)
	}

	if response.Firmware == nil {
		return nil, nil
	}

	return &updatecontroller.Candidate{
		Version:    response.Firmware.Version,
		PackageURI: response.Firmware.PackageURI,
		Size:       response.Firmware.Size,
		Checksum:   response.Firmware.Checksum,
	}, nil
}

// Submit sends the status record. Fire and forget: the caller swallows the
// returned error.
func (client *Client) Submit(record statusreporter.StatusRecord) (err error) {
	client.Lock()
	defer client.Unlock()

	if client.connection == nil {
		return aoserrors.New("not connected")
	}

	message := StatusMessage{
		MessageHeader: MessageHeader{Type: StatusType},
		StatusRecord:  record,
	}

	if err = client.writeJSON(message); err != nil {
		client.disconnect()

		return aoserrors.Wrap(err)
	}

	return nil
}

// Teardown closes the connection, freeing the transport for the firmware
// transfer.
func (client *Client) Teardown() (err error) {
	client.Lock()
	defer client.Unlock()

	log.Debug("Tear down management connection")

	client.disconnect()

	return nil
}

// Reestablish recreates the connection after Teardown.
func (client *Client) Reestablish() (err error) {
	client.Lock()
	defer client.Unlock()

	log.Debug("Reestablish management connection")

	if client.connection != nil {
		return nil
	}

	return client.connect()
}

// Close closes the client.
func (client *Client) Close() {
	client.Lock()
	defer client.Unlock()

	log.Debug("Close cloud client")

	client.disconnect()
}

/***********************************************************************************************************************
 * Private
 **********************************************************************************************************************/

func createTLSConfig(caCert string) (tlsConfig *tls.Config, err error) {
	pem, err := os.ReadFile(caCert)
	if err != nil {
		return nil, aoserrors.Wrap(err)
	}

	pool := x509.NewCertPool()

	if !pool.AppendCertsFromPEM(pem) {
		return nil, aoserrors.Errorf("can't parse CA certificate: %s", caCert)
	}

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (client *Client) connect() (err error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: writeSocketTimeout,
		TLSClientConfig:  client.tlsConfig,
	}

	header := http.Header{}
	if client.deviceID != "" {
		header.Set("X-Device-Id", client.deviceID)
	}

	connection, _, err := dialer.Dial(client.url, header) //nolint:bodyclose // connection owns the response
	if err != nil {
		return aoserrors.Wrap(err)
	}

	log.WithField("url", client.url).Info("Connected to management service")

	client.connection = connection

	return nil
}

func (client *Client) disconnect() {
	if client.connection == nil {
		return
	}

	if err := client.connection.Close(); err != nil {
		log.Warnf("Can't close management connection: %s", err)
	}

	client.connection = nil
}

func (client *Client) writeJSON(message interface{}) (err error) {
	if err = client.connection.SetWriteDeadline(time.Now().Add(writeSocketTimeout)); err != nil {
		return aoserrors.Wrap(err)
	}

	return aoserrors.Wrap(client.connection.WriteJSON(message))
}
