// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/dtcp"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/rmt/wstransport"
	"github.com/rina-go/dtcp/pkg/sched"
)

// tomlConfig describes the TOML-configuration, modeled on the teacher's
// cmd/dtnd/configuration.go tomlConfig.
type tomlConfig struct {
	Node       nodeConf
	Logging    logConf
	Listen     listenConf
	Connection []connectionConf
}

// nodeConf names this daemon's own DIF address.
type nodeConf struct {
	Address uint32
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// listenConf describes the wstransport listener this daemon accepts
// peer connections on.
type listenConf struct {
	Endpoint string
	Path     string
}

// connectionConf describes one DTP/DTCP connection to bring up against a
// peer, dialing peerEndpoint if non-empty; otherwise nothing is dialed
// and the connection relies on the peer dialing in on Listen.
type connectionConf struct {
	Name         string
	PeerEndpoint string `toml:"peer-endpoint"`
	PeerAddress  uint32 `toml:"peer-address"`
	SrcCEPID     uint32 `toml:"src-cepid"`
	DstCEPID     uint32 `toml:"dst-cepid"`
	QoS          uint32
	Policy       connstate.PolicyParams
}

// daemon owns every resource parseConfig wires up, so main can tear it all
// down on shutdown.
type daemon struct {
	cron      *sched.Cron
	transport *wstransport.Transport
	srv       *http.Server
	pairs     []*dtcp.Pair
}

// dumpSnapshots logs each wired connection's current Snapshot, for the
// -dump flag's live-debugging use, per SUPPLEMENTED FEATURES' console dump
// command.
func (d *daemon) dumpSnapshots() {
	for i, p := range d.pairs {
		snap := p.DTCP.Snapshot()
		log.WithFields(log.Fields{
			"index":         i,
			"state":         snap.State.String(),
			"snd_lft_win":   snap.SndLftWin,
			"snd_rt_wind":   snap.SndRtWindEdge,
			"last_rcv_ctl":  snap.LastRcvCtlSeq,
			"acks":          snap.Acks,
			"flow_ctl":      snap.FlowCtl,
			"reconcile_cnt": snap.Stats.ReconcileCount,
		}).Info("dtcpd: snapshot")
	}
}

func (d *daemon) Close() {
	for _, p := range d.pairs {
		if err := p.Close(5 * time.Second); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("dtcpd: pair close reported an error")
		}
	}
	if d.srv != nil {
		_ = d.srv.Close()
	}
	d.cron.Stop()
}

// configureLogging applies conf's logging block, mirroring the teacher's
// cmd/dtnd/configuration.go.
func configureLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("dtcpd: failed to set log level")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		log.Warn("dtcpd: unknown logging format")
	}
}

// parseDaemon loads filename and wires a transport, a cron, and one
// dtcp.Pair per [[connection]] block.
func parseDaemon(filename string) (*daemon, error) {
	var conf tomlConfig
	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		return nil, fmt.Errorf("dtcpd: decode config: %w", err)
	}

	configureLogging(conf.Logging)

	if conf.Node.Address == 0 {
		return nil, fmt.Errorf("dtcpd: node.address must be set")
	}
	localAddr := connstate.Address(conf.Node.Address)

	d := &daemon{
		cron:      sched.NewCron(),
		transport: wstransport.New(),
	}

	if conf.Listen.Endpoint != "" {
		path := conf.Listen.Path
		if path == "" {
			path = "/dtcp"
		}
		mux := http.NewServeMux()
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			peerAddr := localAddr // accepted peers are keyed under the local address; nothing re-keys them later
			if err := d.transport.Accept(w, r, peerAddr); err != nil {
				log.WithFields(log.Fields{"err": err}).Warn("dtcpd: accept failed")
			}
		})
		d.srv = &http.Server{Addr: conf.Listen.Endpoint, Handler: mux}
		go func() {
			if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithFields(log.Fields{"err": err}).Error("dtcpd: listener exited")
			}
		}()
		log.WithFields(log.Fields{"endpoint": conf.Listen.Endpoint, "path": path}).Info("dtcpd: listening")
	}

	for _, cc := range conf.Connection {
		pair, err := wireConnection(d, localAddr, cc)
		if err != nil {
			return nil, fmt.Errorf("dtcpd: connection %q: %w", cc.Name, err)
		}
		d.pairs = append(d.pairs, pair)
	}

	return d, nil
}

// wireConnection dials the peer when an endpoint is configured (it does
// not wait for an inbound one), builds the Connection
// identity, and runs dtcp.Build/Open exactly as the design's "DT builder"
// resolves the DTP/DTCP cyclic-ownership wiring.
func wireConnection(d *daemon, localAddr connstate.Address, cc connectionConf) (*dtcp.Pair, error) {
	policy := cc.Policy
	if policy == (connstate.PolicyParams{}) {
		defaults := connstate.DefaultPolicyParams()
		policy = defaults
	}

	peerAddr := connstate.Address(cc.PeerAddress)

	if cc.PeerEndpoint != "" {
		if err := d.transport.Dial(cc.PeerEndpoint, peerAddr); err != nil {
			return nil, err
		}
	}

	conn, err := connstate.Connect(
		connstate.CEPID(cc.SrcCEPID), connstate.CEPID(cc.DstCEPID),
		localAddr, peerAddr, connstate.QoSID(cc.QoS), &policy,
	)
	if err != nil {
		return nil, err
	}

	pair := dtcp.Build(conn, d.transport, d.cron, dtcp.Policies{}, 1)

	d.transport.Register(peerAddr, localAddr, connstate.QoSID(cc.QoS), func(pdu *pci.PDU) {
		if err := pair.DTCP.ReceivePDU(pdu); err != nil {
			log.WithFields(log.Fields{"name": cc.Name, "err": err}).Debug("dtcpd: pdu processing reported an error")
		}
	})

	if err := pair.DTCP.Open(); err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	log.WithFields(log.Fields{"name": cc.Name, "peer": peerAddr}).Info("dtcpd: connection opened")
	return pair, nil
}
