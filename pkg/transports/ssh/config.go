// Package ssh runs matrix jobs on a remote host over SSH, staging workspace
// files with SFTP before the first command runs.
package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config holds the SSH connection settings for a remote runner.
type Config struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port (default: 22).
	Port int

	// User is the SSH username.
	User string

	// KeyFile is the path to the private key file. Empty tries the default
	// key locations under ~/.ssh.
	KeyFile string

	// KeyPassphrase is the passphrase for encrypted private keys.
	KeyPassphrase string

	// KnownHostsFile is the known_hosts file used for host key checks.
	// Empty disables verification (not recommended outside tests).
	KnownHostsFile string

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration

	// WorkDir is the remote directory commands run in.
	WorkDir string
}

// DefaultConfig returns a Config with sensible defaults for host and user.
func DefaultConfig(host, user string) *Config {
	cfg := &Config{
		Port:           22,
		User:           user,
		KnownHostsFile: filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		ConnectTimeout: 30 * time.Second,
	}
	cfg.Host, cfg.Port = splitHostPort(host, cfg.Port)
	return cfg
}

// splitHostPort separates an optional :port suffix, falling back to def.
func splitHostPort(host string, def int) (string, int) {
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		return host, def
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, def
	}
	return h, port
}

// Validate checks the configuration before a connection attempt.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.KeyFile != "" {
		if _, err := os.Stat(c.KeyFile); err != nil {
			return fmt.Errorf("private key file not found: %s", c.KeyFile)
		}
	}
	return nil
}

// Address returns the host:port dial address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// clientConfig builds the ssh.ClientConfig for this configuration.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	keyFile := c.KeyFile
	if keyFile == "" {
		home := os.Getenv("HOME")
		for _, candidate := range []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
			filepath.Join(home, ".ssh", "id_ecdsa"),
		} {
			if _, err := os.Stat(candidate); err == nil {
				keyFile = candidate
				break
			}
		}
		if keyFile == "" {
			return nil, fmt.Errorf("no private key configured and no default key found")
		}
	}

	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	var signer ssh.Signer
	if c.KeyPassphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.KeyPassphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}
