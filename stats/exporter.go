/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// PrometheusExporter serves Registry's counters as Prometheus counters,
// grounded on ptp/sptp/stats/prom_exporter.go's registry+promhttp
// pattern. Unlike the teacher, which scrapes its own daemon's HTTP
// stats endpoint on an interval, this exporter reads straight from the
// in-process Registry at collect time: there is no second hop since
// the daemon and the exporter share an address space.
type PrometheusExporter struct {
	registry   *prometheus.Registry
	counters   *Registry
	listenPort int
}

// NewPrometheusExporter creates an exporter for counters, not yet
// serving.
func NewPrometheusExporter(listenPort int, counters *Registry) *PrometheusExporter {
	e := &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		counters:   counters,
		listenPort: listenPort,
	}
	e.registry.MustRegister(&systemCollector{counters: counters})
	e.registry.MustRegister(&tasCollector{counters: counters})
	return e
}

// ListenAndServe serves /metrics until the process exits or the
// listener fails, and returns the listener's error to the caller.
func (e *PrometheusExporter) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	addr := fmt.Sprintf(":%d", e.listenPort)
	log.WithField("addr", addr).Info("stats: prometheus exporter listening")
	return http.ListenAndServe(addr, mux)
}

type systemCollector struct {
	counters *Registry
}

var systemDescs = map[string]*prometheus.Desc{
	"pdelay_req_send":           newDesc("gptp_pdelay_req_send_total"),
	"pdelay_resp_rec":           newDesc("gptp_pdelay_resp_rec_total"),
	"pdelay_resp_rec_valid":     newDesc("gptp_pdelay_resp_rec_valid_total"),
	"pdelay_resp_fup_rec":       newDesc("gptp_pdelay_resp_fup_rec_total"),
	"pdelay_resp_fup_rec_valid": newDesc("gptp_pdelay_resp_fup_rec_valid_total"),
	"pdelay_req_rec":            newDesc("gptp_pdelay_req_rec_total"),
	"pdelay_req_rec_valid":      newDesc("gptp_pdelay_req_rec_valid_total"),
	"pdelay_resp_send":          newDesc("gptp_pdelay_resp_send_total"),
	"pdelay_resp_fup_send":      newDesc("gptp_pdelay_resp_fup_send_total"),
}

func newDesc(name string) *prometheus.Desc {
	return prometheus.NewDesc(name, name, []string{"port"}, nil)
}

func (c *systemCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range systemDescs {
		ch <- d
	}
}

func (c *systemCollector) Collect(ch chan<- prometheus.Metric) {
	for _, snap := range c.counters.AllSystem() {
		port := fmt.Sprintf("%d", snap.PortIndex)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_req_send"], prometheus.CounterValue, float64(snap.PdelayReqSend), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_resp_rec"], prometheus.CounterValue, float64(snap.PdelayRespRec), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_resp_rec_valid"], prometheus.CounterValue, float64(snap.PdelayRespRecValid), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_resp_fup_rec"], prometheus.CounterValue, float64(snap.PdelayRespFupRec), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_resp_fup_rec_valid"], prometheus.CounterValue, float64(snap.PdelayRespFupRecValid), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_req_rec"], prometheus.CounterValue, float64(snap.PdelayReqRec), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_req_rec_valid"], prometheus.CounterValue, float64(snap.PdelayReqRecValid), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_resp_send"], prometheus.CounterValue, float64(snap.PdelayRespSend), port)
		ch <- prometheus.MustNewConstMetric(systemDescs["pdelay_resp_fup_send"], prometheus.CounterValue, float64(snap.PdelayRespFupSend), port)
	}
}

type tasCollector struct {
	counters *Registry
}

var tasDescs = map[string]*prometheus.Desc{
	"sync_send":                newTasDesc("gptp_sync_send_total"),
	"sync_fup_send":            newTasDesc("gptp_sync_fup_send_total"),
	"sync_rec":                 newTasDesc("gptp_sync_rec_total"),
	"sync_rec_valid":           newTasDesc("gptp_sync_rec_valid_total"),
	"sync_fup_rec":             newTasDesc("gptp_sync_fup_rec_total"),
	"sync_fup_rec_valid":       newTasDesc("gptp_sync_fup_rec_valid_total"),
	"announce_send":            newTasDesc("gptp_announce_send_total"),
	"announce_rec":             newTasDesc("gptp_announce_rec_total"),
	"announce_rec_valid":       newTasDesc("gptp_announce_rec_valid_total"),
	"signal_msg_interval_send": newTasDesc("gptp_signal_msg_interval_send_total"),
	"signal_gptp_capable_send": newTasDesc("gptp_signal_gptp_capable_send_total"),
	"signal_rec":               newTasDesc("gptp_signal_rec_total"),
	"signal_msg_interval_rec":  newTasDesc("gptp_signal_msg_interval_rec_total"),
	"signal_gptp_capable_rec":  newTasDesc("gptp_signal_gptp_capable_rec_total"),
}

func newTasDesc(name string) *prometheus.Desc {
	return prometheus.NewDesc(name, name, []string{"domain", "port"}, nil)
}

func (c *tasCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range tasDescs {
		ch <- d
	}
}

func (c *tasCollector) Collect(ch chan<- prometheus.Metric) {
	for _, snap := range c.counters.AllTas() {
		domain := fmt.Sprintf("%d", snap.DomainNumber)
		port := fmt.Sprintf("%d", snap.PortIndex)
		ch <- prometheus.MustNewConstMetric(tasDescs["sync_send"], prometheus.CounterValue, float64(snap.SyncSend), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["sync_fup_send"], prometheus.CounterValue, float64(snap.SyncFupSend), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["sync_rec"], prometheus.CounterValue, float64(snap.SyncRec), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["sync_rec_valid"], prometheus.CounterValue, float64(snap.SyncRecValid), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["sync_fup_rec"], prometheus.CounterValue, float64(snap.SyncFupRec), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["sync_fup_rec_valid"], prometheus.CounterValue, float64(snap.SyncFupRecValid), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["announce_send"], prometheus.CounterValue, float64(snap.AnnounceSend), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["announce_rec"], prometheus.CounterValue, float64(snap.AnnounceRec), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["announce_rec_valid"], prometheus.CounterValue, float64(snap.AnnounceRecValid), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["signal_msg_interval_send"], prometheus.CounterValue, float64(snap.SignalMsgIntervalSend), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["signal_gptp_capable_send"], prometheus.CounterValue, float64(snap.SignalGptpCapableSend), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["signal_rec"], prometheus.CounterValue, float64(snap.SignalRec), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["signal_msg_interval_rec"], prometheus.CounterValue, float64(snap.SignalMsgIntervalRec), domain, port)
		ch <- prometheus.MustNewConstMetric(tasDescs["signal_gptp_capable_rec"], prometheus.CounterValue, float64(snap.SignalGptpCapableRec), domain, port)
	}
}
