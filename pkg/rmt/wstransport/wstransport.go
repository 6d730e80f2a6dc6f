// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wstransport is a runnable RMT implementation carrying PCI-framed
// PDUs over a gorilla/websocket connection, for the cmd/dtcpd demo and
// integration tests that want a real socket instead of pkg/rmt's in-memory
// FIFO. Each PDU is sent as one binary websocket message; gorilla
// preserves message boundaries, so no additional length-prefixing is
// needed on top of pci.PDU's own fixed-width framing.
package wstransport

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/rmt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Transport is an rmt.RMT backed by a set of peer websocket connections,
// one per destination address. It dispatches received PDUs to the
// registered rmt.Receiver for their (src,dst,qos) route, same contract as
// rmt.Memory.
type Transport struct {
	mu    sync.Mutex
	peers map[connstate.Address]*websocket.Conn

	receivers map[route]rmt.Receiver
}

type route struct {
	src connstate.Address
	dst connstate.Address
	qos connstate.QoSID
}

// New creates an empty Transport. Use Dial or Accept to add peer
// connections before sending.
func New() *Transport {
	return &Transport{
		peers:     make(map[connstate.Address]*websocket.Conn),
		receivers: make(map[route]rmt.Receiver),
	}
}

// Register arms a Receiver for a (src,dst,qos) route, mirroring
// rmt.Memory.Register so callers can swap transports without changing
// engine wiring.
func (t *Transport) Register(src, dst connstate.Address, qos connstate.QoSID, recv rmt.Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receivers[route{src: src, dst: dst, qos: qos}] = recv
}

// Dial opens a websocket connection to a peer's Accept endpoint and
// associates it with peerAddr for future Send calls.
func (t *Transport) Dial(url string, peerAddr connstate.Address) error {
	dialer := &websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			return tunedDialer().Dial(network, addr)
		},
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("wstransport: dial %s: %w", url, err)
	}
	t.addPeer(peerAddr, conn)
	go t.readLoop(peerAddr, conn)
	return nil
}

// Accept upgrades an inbound HTTP request to a websocket connection and
// associates it with peerAddr.
func (t *Transport) Accept(w http.ResponseWriter, r *http.Request, peerAddr connstate.Address) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("wstransport: upgrade: %w", err)
	}
	t.addPeer(peerAddr, conn)
	go t.readLoop(peerAddr, conn)
	return nil
}

func (t *Transport) addPeer(addr connstate.Address, conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[addr] = conn
}

func (t *Transport) readLoop(peerAddr connstate.Address, conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.WithFields(log.Fields{"peer": peerAddr, "err": err}).Debug("wstransport: read loop exiting")
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		pdu := &pci.PDU{}
		if err := pdu.Unmarshal(bytes.NewReader(data)); err != nil {
			log.WithFields(log.Fields{"peer": peerAddr, "err": err}).Warn("wstransport: malformed pdu")
			continue
		}

		r := route{
			src: connstate.Address(pdu.PCI.SrcAddr),
			dst: connstate.Address(pdu.PCI.DstAddr),
			qos: connstate.QoSID(pdu.PCI.QoSID),
		}
		t.mu.Lock()
		recv, ok := t.receivers[r]
		t.mu.Unlock()
		if !ok {
			log.WithFields(log.Fields{"route": r}).Debug("wstransport: no receiver for route, dropping")
			continue
		}
		recv(pdu)
	}
}

// Send implements rmt.RMT. It looks up the websocket connection for dst
// and writes pdu as a single binary message.
func (t *Transport) Send(dst connstate.Address, qos connstate.QoSID, pdu *pci.PDU) error {
	t.mu.Lock()
	conn, ok := t.peers[dst]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("wstransport: no connection to %v", dst)
	}

	var buf bytes.Buffer
	if err := pdu.Marshal(&buf); err != nil {
		return fmt.Errorf("wstransport: marshal: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return fmt.Errorf("wstransport: write: %w", err)
	}
	return nil
}
