// Package trust builds the root certificate pool used to verify the
// server.  The trust store is a PEM file or a directory of *.pem and
// *.crt files; its certificates are added to the system roots.
package trust

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"quicget/util"
)

// Load returns the root pool for path.  A missing path falls back to
// the system roots.
func Load(path string, logger *util.Logger) (*x509.CertPool, error) {
	if logger == nil {
		logger = util.NewLogger(0)
	}

	pool := systemPool(logger)
	if path == "" {
		return pool, nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Verbose("trust store %s not found, using system roots", path)
		return pool, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "trust store %s", path)
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = certFiles(path); err != nil {
			return nil, err
		}
	}

	added := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", f)
		}
		if !pool.AppendCertsFromPEM(data) {
			if !info.IsDir() {
				return nil, errors.Errorf("trust store %s: no PEM certificates", f)
			}
			logger.Warn("trust store: skipping %s, no PEM certificates", f)
			continue
		}
		added++
		logger.Debug("trust store: loaded %s", f)
	}

	if added == 0 {
		logger.Verbose("trust store %s has no certificates, using system roots", path)
	} else {
		logger.Verbose("trust store %s: %d file(s) added to system roots", path, added)
	}
	return pool, nil
}

func certFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.pem", "*.crt"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s", dir)
		}
		files = append(files, m...)
	}
	sort.Strings(files)
	return files, nil
}

func systemPool(logger *util.Logger) *x509.CertPool {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		logger.Debug("system roots unavailable: %v", err)
		return x509.NewCertPool()
	}
	return pool
}
