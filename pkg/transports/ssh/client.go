package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Client maintains an SSH connection to a remote runner host.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu     sync.RWMutex
	client *ssh.Client
}

// NewClient creates a client for the given configuration. Connect must be
// called before commands can run.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "ssh").Str("host", config.Host).Logger(),
	}, nil
}

// Connect establishes the SSH connection, honoring ctx cancellation.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return err
	}

	address := c.config.Address()
	c.logger.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("connecting to %s: %w", address, ctx.Err())
	case err := <-errChan:
		return fmt.Errorf("connecting to %s: %w", address, err)
	case client := <-connChan:
		c.client = client
		c.logger.Info().Str("address", address).Msg("SSH connection established")
		return nil
	}
}

// Close shuts down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// conn returns the live connection or an error when disconnected.
func (c *Client) conn() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return c.client, nil
}

// Stage uploads local files into the remote work directory via SFTP,
// creating the directory first. File modes are preserved.
func (c *Client) Stage(ctx context.Context, files []string) error {
	if len(files) == 0 && c.config.WorkDir == "" {
		return nil
	}

	conn, err := c.conn()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("opening sftp session: %w", err)
	}
	defer sftpClient.Close()

	workDir := c.config.WorkDir
	if workDir != "" {
		if err := sftpClient.MkdirAll(workDir); err != nil {
			return fmt.Errorf("creating remote work dir %s: %w", workDir, err)
		}
	}

	for _, local := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		remote := path.Join(workDir, filepath.Base(local))
		if err := c.uploadFile(sftpClient, local, remote); err != nil {
			return err
		}
		c.logger.Debug().Str("local", local).Str("remote", remote).Msg("file staged")
	}
	return nil
}

func (c *Client) uploadFile(sftpClient *sftp.Client, local, remote string) error {
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening %s: %w", local, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", local, err)
	}

	dst, err := sftpClient.Create(remote)
	if err != nil {
		return fmt.Errorf("creating remote file %s: %w", remote, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("uploading %s: %w", local, err)
	}
	if err := sftpClient.Chmod(remote, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", remote, err)
	}
	return nil
}
