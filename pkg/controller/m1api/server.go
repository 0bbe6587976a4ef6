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

// Package m1api serves the provisioning (M1) interface: provisioning
// sessions, their server certificates and content hosting configurations,
// and cache purges.
//
// Every success goes through sbi.Service.NewResponse and every error
// through sbi.Service.SendProblem.
package m1api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"msaf/pkg/appserver"
	"msaf/pkg/controller/appserversync"
	"msaf/pkg/provisioning"
	"msaf/pkg/sbi"
)

const (
	// APIName and APIVersion form the path root and the problem type.
	APIName    = "3gpp-m1"
	APIVersion = "v2"

	// PathRoot prefixes every route.
	PathRoot = "/" + APIName + "/" + APIVersion

	maxBodySize = 1 << 20
)

// SyncController is the part of the sync component the API drives.
type SyncController interface {
	PrimaryServer(ctx context.Context) (appserver.ApplicationServer, error)
	AssignNewSession(sessionID string)
	UpdateAssignedSession(sessionID string)
	RemoveSession(sessionID string)
	PurgeCache(ctx context.Context, sessionID string, pattern *string) (appserversync.PurgeResult, error)
}

// Options configures the server.
type Options struct {
	ListenAddress string

	// CacheControlMaxAge is sent on cacheable GET responses.
	CacheControlMaxAge int

	// Service names the interface in problem types and the Server header.
	Service sbi.Service
}

// Server is the M1 HTTP server.
type Server struct {
	opts         Options
	sessions     *provisioning.Store
	certificates *provisioning.CertificateStore
	sync         SyncController
	logger       *slog.Logger
	router       *mux.Router
	server       *http.Server
}

// New creates the server and its routes.
func New(opts Options, sessions *provisioning.Store, certificates *provisioning.CertificateStore, sync SyncController, logger *slog.Logger) *Server {
	if opts.Service.Name == "" {
		opts.Service.Name = APIName
	}
	if opts.Service.APIVersion == "" {
		opts.Service.APIVersion = APIVersion
	}

	s := &Server{
		opts:         opts,
		sessions:     sessions,
		certificates: certificates,
		sync:         sync,
		logger:       logger.With("component", "m1-api"),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              opts.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix(PathRoot).Subrouter()

	api.HandleFunc("/provisioning-sessions", s.createSession).Methods(http.MethodPost)
	api.HandleFunc("/provisioning-sessions/{id}", s.getSession).Methods(http.MethodGet)
	api.HandleFunc("/provisioning-sessions/{id}", s.deleteSession).Methods(http.MethodDelete)

	api.HandleFunc("/provisioning-sessions/{id}/certificates/{certId}", s.putCertificate).Methods(http.MethodPut)
	api.HandleFunc("/provisioning-sessions/{id}/certificates/{certId}", s.getCertificate).Methods(http.MethodGet)

	chc := "/provisioning-sessions/{id}/content-hosting-configuration"
	api.HandleFunc(chc, s.createConfiguration).Methods(http.MethodPost)
	api.HandleFunc(chc, s.updateConfiguration).Methods(http.MethodPut)
	api.HandleFunc(chc, s.getConfiguration).Methods(http.MethodGet)
	api.HandleFunc(chc, s.deleteConfiguration).Methods(http.MethodDelete)
	api.HandleFunc(chc+"/purge", s.purge).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.problem(w, http.StatusNotFound, components(req), "Not Found", "no such resource", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.problem(w, http.StatusMethodNotAllowed, components(req), "Method Not Allowed",
			req.Method+" is not supported on this resource", nil)
	})
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("Starting M1 server", "addr", s.opts.ListenAddress)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("M1 server shutting down", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("M1 server shutdown failed: %w", err)
		}
		return nil

	case err := <-serverErr:
		return fmt.Errorf("M1 server error: %w", err)
	}
}

// -----------------------------------------------------------------------------
// Provisioning sessions
// -----------------------------------------------------------------------------

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	comps := components(r)
	if !s.requireContentType(w, r, comps, "application/json") {
		return
	}
	body, ok := s.readBody(w, r, comps)
	if !ok {
		return
	}

	req, err := provisioning.ParseSessionRequest(body)
	if err != nil {
		s.fail(w, comps, err)
		return
	}
	session, err := s.sessions.Create(req)
	if err != nil {
		s.fail(w, comps, err)
		return
	}

	s.writeSession(w, http.StatusCreated, session, PathRoot+"/provisioning-sessions/"+session.ID)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, components(r), err)
		return
	}
	s.writeSession(w, http.StatusOK, session, "")
}

func (s *Server) writeSession(w http.ResponseWriter, status int, session *provisioning.Session, location string) {
	body, err := json.Marshal(session)
	if err != nil {
		s.fail(w, []string{"provisioning-sessions", session.ID}, err)
		return
	}
	s.write(w, s.opts.Service.NewResponse(sbi.ResponseOptions{
		Location:           location,
		ContentType:        "application/json",
		LastModified:       session.Metadata.Received,
		ETag:               session.Metadata.Hash,
		CacheControlMaxAge: s.opts.CacheControlMaxAge,
		Interface:          sbi.InterfaceProvisioningSession,
	}).WithBody(status, body))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.sessions.Delete(id); err != nil {
		s.fail(w, components(r), err)
		return
	}

	s.sync.RemoveSession(id)
	if err := s.certificates.RemoveSession(id); err != nil {
		s.logger.Error("failed to remove certificate files", "session", id, "error", err)
	}

	s.noContent(w, sbi.InterfaceProvisioningSession)
}

// -----------------------------------------------------------------------------
// Certificates
// -----------------------------------------------------------------------------

func (s *Server) putCertificate(w http.ResponseWriter, r *http.Request) {
	comps := components(r)
	vars := mux.Vars(r)
	key := appserver.CertificateKey{SessionID: vars["id"], CertificateID: vars["certId"]}

	if !s.requireContentType(w, r, comps, provisioning.ContentTypePEM) {
		return
	}
	pem, ok := s.readBody(w, r, comps)
	if !ok {
		return
	}
	if len(pem) == 0 {
		s.problem(w, http.StatusBadRequest, comps, "Bad Request", "certificate body is empty", nil)
		return
	}
	if _, err := s.sessions.Get(key.SessionID); err != nil {
		s.fail(w, comps, err)
		return
	}

	// Hosting servers pick the new file up through the certificate watcher.
	path, err := s.certificates.Write(key, pem)
	if err != nil {
		s.fail(w, comps, err)
		return
	}
	if err := s.sessions.AddCertificate(key.SessionID, key.CertificateID, path); err != nil {
		s.fail(w, comps, err)
		return
	}

	s.noContent(w, sbi.InterfaceProvisioningSession)
}

func (s *Server) getCertificate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := appserver.CertificateKey{SessionID: vars["id"], CertificateID: vars["certId"]}

	pem, err := s.certificates.Read(key)
	if err != nil {
		s.fail(w, components(r), err)
		return
	}
	s.write(w, s.opts.Service.NewResponse(sbi.ResponseOptions{
		ContentType: provisioning.ContentTypePEM,
		Interface:   sbi.InterfaceProvisioningSession,
	}).WithBody(http.StatusOK, pem))
}

// -----------------------------------------------------------------------------
// Content hosting configuration
// -----------------------------------------------------------------------------

func (s *Server) createConfiguration(w http.ResponseWriter, r *http.Request) {
	s.storeConfiguration(w, r, true)
}

func (s *Server) updateConfiguration(w http.ResponseWriter, r *http.Request) {
	s.storeConfiguration(w, r, false)
}

func (s *Server) storeConfiguration(w http.ResponseWriter, r *http.Request, create bool) {
	comps := components(r)
	id := mux.Vars(r)["id"]

	if !s.requireContentType(w, r, comps, "application/json") {
		return
	}
	doc, ok := s.readBody(w, r, comps)
	if !ok {
		return
	}

	session, err := s.sessions.Get(id)
	if err != nil {
		s.fail(w, comps, err)
		return
	}
	switch {
	case create && session.Configuration != nil:
		s.problem(w, http.StatusConflict, comps, "Conflict",
			"content hosting configuration already exists", nil)
		return
	case !create && session.Configuration == nil:
		s.fail(w, comps, fmt.Errorf("%w: %s", provisioning.ErrNoConfiguration, id))
		return
	}

	server, err := s.sync.PrimaryServer(r.Context())
	if err != nil {
		s.problem(w, http.StatusServiceUnavailable, comps, "Service Unavailable",
			"no application server is registered", nil)
		return
	}

	if _, err := s.sessions.SetContentHostingConfiguration(id, doc, server); err != nil {
		s.fail(w, comps, err)
		return
	}

	if create {
		s.sync.AssignNewSession(id)
		s.write(w, s.opts.Service.NewResponse(sbi.ResponseOptions{
			Location:  PathRoot + "/provisioning-sessions/" + id + "/content-hosting-configuration",
			Interface: sbi.InterfaceContentHostingConfiguration,
		}).WithBody(http.StatusCreated, nil))
		return
	}

	s.sync.UpdateAssignedSession(id)
	s.noContent(w, sbi.InterfaceContentHostingConfiguration)
}

func (s *Server) getConfiguration(w http.ResponseWriter, r *http.Request) {
	comps := components(r)
	session, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, comps, err)
		return
	}
	if session.Configuration == nil {
		s.fail(w, comps, fmt.Errorf("%w: %s", provisioning.ErrNoConfiguration, session.ID))
		return
	}

	meta := session.ConfigurationMetadata
	resp := s.opts.Service.NewResponse(sbi.ResponseOptions{
		ContentType:        "application/json",
		LastModified:       meta.Received,
		ETag:               meta.Hash,
		CacheControlMaxAge: s.opts.CacheControlMaxAge,
		Interface:          sbi.InterfaceContentHostingConfiguration,
	})
	if match := r.Header.Get("If-None-Match"); match != "" && match == meta.Hash {
		s.write(w, resp.WithBody(http.StatusNotModified, nil))
		return
	}
	s.write(w, resp.WithBody(http.StatusOK, session.Configuration))
}

func (s *Server) deleteConfiguration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.sessions.DeleteContentHostingConfiguration(id); err != nil {
		s.fail(w, components(r), err)
		return
	}
	s.sync.RemoveSession(id)
	s.noContent(w, sbi.InterfaceContentHostingConfiguration)
}

// purge accepts a form body "regex=<pattern>" or a bare pattern. An empty
// body purges everything.
func (s *Server) purge(w http.ResponseWriter, r *http.Request) {
	comps := components(r)
	id := mux.Vars(r)["id"]

	if !s.requireContentType(w, r, comps, "application/x-www-form-urlencoded") {
		return
	}
	body, ok := s.readBody(w, r, comps)
	if !ok {
		return
	}
	pattern := purgePattern(body)

	session, err := s.sessions.Get(id)
	if err != nil {
		s.fail(w, comps, err)
		return
	}
	if session.Configuration == nil {
		s.fail(w, comps, fmt.Errorf("%w: %s", provisioning.ErrNoConfiguration, id))
		return
	}

	result, err := s.sync.PurgeCache(r.Context(), id, pattern)
	if err != nil {
		s.logger.Warn("cache purge failed", "session", id, "error", err)
		var purgeErr *appserversync.PurgeError
		if errors.As(err, &purgeErr) {
			s.problem(w, http.StatusInternalServerError, comps, "Cache Purge Failed", err.Error(), nil)
			return
		}
		s.problem(w, http.StatusGatewayTimeout, comps, "Gateway Timeout", err.Error(), nil)
		return
	}

	if len(result.Servers) == 0 {
		s.noContent(w, sbi.InterfaceContentHostingConfiguration)
		return
	}
	body, _ = json.Marshal(result.Purged)
	s.write(w, s.opts.Service.NewResponse(sbi.ResponseOptions{
		ContentType: "application/json",
		Interface:   sbi.InterfaceContentHostingConfiguration,
	}).WithBody(http.StatusOK, body))
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Server) noContent(w http.ResponseWriter, iface string) {
	s.write(w, s.opts.Service.NewResponse(sbi.ResponseOptions{Interface: iface}).
		WithBody(http.StatusNoContent, nil))
}

func (s *Server) write(w http.ResponseWriter, resp *sbi.Response) {
	if err := resp.Write(w); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

func (s *Server) problem(w http.ResponseWriter, status int, comps []string, title, detail string, invalidParams json.RawMessage) {
	if err := s.opts.Service.SendProblem(w, status, comps, title, detail, invalidParams); err != nil {
		s.logger.Debug("failed to write problem", "error", err)
	}
}

// fail maps an error to its problem document.
func (s *Server) fail(w http.ResponseWriter, comps []string, err error) {
	var invalid *provisioning.InvalidParamError
	switch {
	case errors.As(err, &invalid):
		s.problem(w, http.StatusBadRequest, comps, "Bad Request", err.Error(),
			sbi.InvalidParams(sbi.InvalidParam{Param: invalid.Param, Reason: invalid.Reason}))
	case errors.Is(err, provisioning.ErrSessionNotFound),
		errors.Is(err, provisioning.ErrCertificateNotFound),
		errors.Is(err, provisioning.ErrNoConfiguration):
		s.problem(w, http.StatusNotFound, comps, "Not Found", err.Error(), nil)
	default:
		s.logger.Error("M1 request failed", "instance", comps, "error", err)
		s.problem(w, http.StatusInternalServerError, comps, "Internal Server Error", err.Error(), nil)
	}
}

func (s *Server) requireContentType(w http.ResponseWriter, r *http.Request, comps []string, want string) bool {
	got, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && got == want {
		return true
	}
	s.problem(w, http.StatusUnsupportedMediaType, comps, "Unsupported Media Type",
		"expected content type "+want, nil)
	return false
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, comps []string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.problem(w, http.StatusRequestEntityTooLarge, comps, "Payload Too Large", err.Error(), nil)
			return nil, false
		}
		s.problem(w, http.StatusBadRequest, comps, "Bad Request", err.Error(), nil)
		return nil, false
	}
	return body, true
}
