// Copyright 2025 Philipp Hossner
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


package introspection

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := NewRegistry()
	reg.Publish("appservers", constVar(map[string]any{"servers": []map[string]any{{"hostname": "as1"}}}))
	reg.Publish("sessions/count", constVar(2))
	reg.Publish("broken", Func(func() (any, error) { return nil, errors.New("boom") }))
	return NewServer(":0", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, s *Server, target string) (int, map[string]any, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var obj map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &obj)
	return rec.Code, obj, rec.Body.String()
}

func TestServer_Index(t *testing.T) {
	code, body, _ := get(t, newTestServer(t), "/debug/vars")
	assert.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 3, body["count"], 0)
	assert.Equal(t, []any{"appservers", "broken", "sessions/count"}, body["paths"])
}

func TestServer_Var(t *testing.T) {
	s := newTestServer(t)

	code, _, raw := get(t, s, "/debug/vars/sessions/count")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "2", raw)

	code, _, raw = get(t, s, "/debug/vars/appservers?field={.servers[0].hostname}")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `"as1"`, raw)
}

func TestServer_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		target string
		code   int
	}{
		{"/debug/vars/missing", http.StatusNotFound},
		{"/debug/vars/broken", http.StatusInternalServerError},
		{"/debug/vars/all", http.StatusInternalServerError},
		{"/debug/vars/appservers?field={.x[", http.StatusBadRequest},
		{"/elsewhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			code, body, _ := get(t, s, tt.target)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Health(t *testing.T) {
	code, body, _ := get(t, newTestServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_StartStops(t *testing.T) {
	reg := NewRegistry()
	s := NewServer("127.0.0.1:0", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("debug server did not stop")
	}
}
