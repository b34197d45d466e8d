// Package main generates a CA and a server certificate for serving the
// directory over TLS, writing them under -dir. An existing CA in -dir is
// reused so re-running only reissues the server certificate.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/gvagate/internal/certgen"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("certgen", flag.ContinueOnError)
	dir := fs.String("dir", "certs", "output directory")
	hosts := fs.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	cn := fs.String("ca-name", "GVA Gate CA", "CA common name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}

	caCertPath := filepath.Join(*dir, "ca.crt")
	caKeyPath := filepath.Join(*dir, "ca.key")

	caCert, caKey, err := certgen.LoadCACredentials(caCertPath, caKeyPath)
	if err != nil {
		if _, statErr := os.Stat(caCertPath); statErr == nil {
			return fmt.Errorf("existing CA unusable: %w", err)
		}
		newCert, newKey, err := certgen.GenerateCA(*cn)
		if err != nil {
			return err
		}
		keyPEM, err := certgen.EncodeKey(newKey)
		if err != nil {
			return err
		}
		if err := certgen.WriteCertAndKey(caCertPath, caKeyPath, certgen.EncodeCert(newCert.Raw), keyPEM); err != nil {
			return err
		}
		caCert, caKey = newCert, newKey
		fmt.Fprintln(out, "generated CA", caCertPath)
	}

	certPEM, keyPEM, err := certgen.GenerateServerCertificate(splitHosts(*hosts), caCert, caKey)
	if err != nil {
		return err
	}
	serverCert := filepath.Join(*dir, "server.crt")
	if err := certgen.WriteCertAndKey(serverCert, filepath.Join(*dir, "server.key"), certPEM, keyPEM); err != nil {
		return err
	}
	fmt.Fprintln(out, "generated server certificate", serverCert)
	return nil
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
