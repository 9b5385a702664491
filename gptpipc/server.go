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

package gptpipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// DataSource is what the query server needs from the running daemon
// to answer GPTPIPC_CMD_REQ_{NDPORT,GPORT,CLOCK,STAT}_INFO requests.
// The orchestrator implements this for cmd/gptp2d's wiring.
type DataSource interface {
	NDPort(portIndex int) (NDPortData, bool)
	GPort(domainNumber uint8, portIndex int) (GPortData, bool)
	Clock(domainNumber uint8) (ClockData, bool)
	StatsSystem(portIndex int) (StatsSystemData, bool)
	StatsTas(domainNumber uint8, portIndex int) (StatsTasData, bool)
}

// Server answers query requests over a Unix socket with JSON
// responses, standing in for gptpipcmon.c's packed-struct datagram
// protocol per spec.md §6 — the wire format itself is out of scope,
// only the request/response surface it describes.
type Server struct {
	source     DataSource
	socketPath string
	httpServer *http.Server
}

// NewServer creates a query server bound to socketPath, not yet
// listening.
func NewServer(socketPath string, source DataSource) *Server {
	mux := http.NewServeMux()
	s := &Server{source: source, socketPath: socketPath, httpServer: &http.Server{Handler: mux}}
	mux.HandleFunc("/ndport", s.handleNDPort)
	mux.HandleFunc("/gport", s.handleGPort)
	mux.HandleFunc("/clock", s.handleClock)
	mux.HandleFunc("/stats/system", s.handleStatsSystem)
	mux.HandleFunc("/stats/tas", s.handleStatsTas)
	return s
}

// ListenAndServe removes any stale socket file, listens, and serves
// until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("gptpipc: clearing stale socket %s: %w", s.socketPath, err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("gptpipc: listening on %s: %w", s.socketPath, err)
	}
	go func() {
		<-ctx.Done()
		s.httpServer.Close()
	}()
	log.WithField("socket", s.socketPath).Info("gptpipc: query server listening")
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gptpipc: serving %s: %w", s.socketPath, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleNDPort(w http.ResponseWriter, r *http.Request) {
	portIndex := queryInt(r, "port", 0)
	data, ok := s.source.NDPort(portIndex)
	writeJSON(w, data, ok)
}

func (s *Server) handleGPort(w http.ResponseWriter, r *http.Request) {
	domainNumber := queryInt(r, "domain", 0)
	portIndex := queryInt(r, "port", 0)
	data, ok := s.source.GPort(uint8(domainNumber), portIndex)
	writeJSON(w, data, ok)
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	domainNumber := queryInt(r, "domain", 0)
	data, ok := s.source.Clock(uint8(domainNumber))
	writeJSON(w, data, ok)
}

func (s *Server) handleStatsSystem(w http.ResponseWriter, r *http.Request) {
	portIndex := queryInt(r, "port", 0)
	data, ok := s.source.StatsSystem(portIndex)
	writeJSON(w, data, ok)
}

func (s *Server) handleStatsTas(w http.ResponseWriter, r *http.Request) {
	domainNumber := queryInt(r, "domain", 0)
	portIndex := queryInt(r, "port", 0)
	data, ok := s.source.StatsTas(uint8(domainNumber), portIndex)
	writeJSON(w, data, ok)
}

func writeJSON(w http.ResponseWriter, v interface{}, ok bool) {
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("gptpipc: encoding response: %v", err)
	}
}
