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
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/excelfore/gptp/protocol"
)

type fakeDataSource struct {
	gport GPortData
	haveG bool
}

func (f *fakeDataSource) NDPort(int) (NDPortData, bool)               { return NDPortData{}, false }
func (f *fakeDataSource) GPort(uint8, int) (GPortData, bool)          { return f.gport, f.haveG }
func (f *fakeDataSource) Clock(uint8) (ClockData, bool)               { return ClockData{}, false }
func (f *fakeDataSource) StatsSystem(int) (StatsSystemData, bool)     { return StatsSystemData{}, false }
func (f *fakeDataSource) StatsTas(uint8, int) (StatsTasData, bool)    { return StatsTasData{}, false }

func TestServerGPortReturnsJSON(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "gptpipc.sock")
	source := &fakeDataSource{
		haveG: true,
		gport: GPortData{DomainNumber: 0, PortIndex: 1, GmClockID: protocol.ClockIdentity(42), AsCapable: true},
	}
	srv := NewServer(socketPath, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForSocket(t, socketPath)

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 2 * time.Second,
	}

	resp, err := client.Get("http://unix/gport?domain=0&port=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got GPortData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, source.gport, got)
}

func TestServerNotFoundWhenSourceHasNoData(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "gptpipc.sock")
	srv := NewServer(socketPath, &fakeDataSource{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.ListenAndServe(ctx)
	waitForSocket(t, socketPath)

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", socketPath)
			},
		},
		Timeout: 2 * time.Second,
	}

	resp, err := client.Get("http://unix/clock?domain=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", path)
}
