package main

import (
	"context"
	"encoding/json"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atinyakov/gvagate/internal/certgen"
	"github.com/atinyakov/gvagate/internal/config"
	"github.com/atinyakov/gvagate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const defaultToken = "a6d1abf7fcf04d5827db9b193a91254f915cba503a6f7f9c02a2bca05f2c8027"

func TestLoadSnapshot(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(`
machine_token: seedtoken
groups:
  - {gid: 1, name: ops, members: [ana]}
users:
  - login: ana
    password: pw
`), 0o600))
	tokenless := filepath.Join(t.TempDir(), "tokenless.yaml")
	require.NoError(t, os.WriteFile(tokenless, []byte("groups: []\n"), 0o600))

	tests := []struct {
		name       string
		options    config.Options
		wantGroups int
		wantToken  string
	}{
		{"builtin", config.Options{}, 2, defaultToken},
		{"builtin with override", config.Options{MachineToken: "override"}, 2, "override"},
		{"seed file", config.Options{SeedFile: seed}, 1, "seedtoken"},
		{"seed file without token", config.Options{SeedFile: tokenless}, 0, defaultToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := loadSnapshot(context.Background(), &tt.options)
			require.NoError(t, err)
			assert.Len(t, snap.Groups, tt.wantGroups)
			assert.Equal(t, tt.wantToken, snap.MachineToken)
		})
	}

	_, err := loadSnapshot(context.Background(), &config.Options{SeedFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestSnapshotSource(t *testing.T) {
	assert.Equal(t, "builtin", snapshotSource(&config.Options{}))
	assert.Equal(t, "x.yaml", snapshotSource(&config.Options{SeedFile: "x.yaml"}))
	assert.Equal(t, "postgres", snapshotSource(&config.Options{SeedFile: "x.yaml", DatabaseDSN: "dsn"}))
}

func TestNewServer_Routes(t *testing.T) {
	snap, err := loadSnapshot(context.Background(), &config.Options{})
	require.NoError(t, err)
	server, err := newServer(&config.Options{Addr: "127.0.0.1:0"}, snap, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, server.TLSConfig)

	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	res, err := nethttp.Get(ts.URL + "/get_groups")
	require.NoError(t, err)
	defer res.Body.Close()
	var groups []models.GroupRecord
	require.NoError(t, json.NewDecoder(res.Body).Decode(&groups))
	assert.Len(t, groups, 2)
}

func TestNewServer_TLS(t *testing.T) {
	dir := t.TempDir()
	caCert, caKey, err := certgen.GenerateCA("Test CA")
	require.NoError(t, err)
	certPEM, keyPEM, err := certgen.GenerateServerCertificate([]string{"localhost"}, caCert, caKey)
	require.NoError(t, err)
	certPath, keyPath := filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
	require.NoError(t, certgen.WriteCertAndKey(certPath, keyPath, certPEM, keyPEM))

	snap, err := loadSnapshot(context.Background(), &config.Options{})
	require.NoError(t, err)

	server, err := newServer(&config.Options{TLSCert: certPath, TLSKey: keyPath}, snap, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, server.TLSConfig)
	assert.Len(t, server.TLSConfig.Certificates, 1)

	_, err = newServer(&config.Options{TLSCert: certPath, TLSKey: filepath.Join(dir, "nope")}, snap, zap.NewNop())
	assert.Error(t, err)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	snap, err := loadSnapshot(context.Background(), &config.Options{})
	require.NoError(t, err)
	server, err := newServer(&config.Options{Addr: addr}, snap, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, false, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		res, err := nethttp.Get("http://" + addr + "/get_groups")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == nethttp.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	server := &nethttp.Server{Addr: ln.Addr().String()}
	err = serve(context.Background(), server, false, zap.NewNop())
	assert.Error(t, err)
}
