// Package filetransfer moves model weights and report artifacts between
// this host and a remote weights server over SSH/SFTP.
package filetransfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// DefaultConnectTimeout bounds SSH connection establishment
const DefaultConnectTimeout = 30 * time.Second

// Credentials holds SSH connection details for the weights host
type Credentials struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte // PEM-encoded private key
}

// Validate checks that the credentials have all required fields
func (c *Credentials) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if len(c.PrivateKey) == 0 {
		return fmt.Errorf("private key cannot be empty")
	}
	return nil
}

// Transfer moves files to and from the remote weights host
type Transfer struct {
	creds          Credentials
	connectTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Transfer instance
type Option func(*Transfer)

// WithConnectTimeout sets the connection timeout
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transfer) { t.connectTimeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transfer) { t.logger = logger }
}

// New creates a new Transfer instance with the given credentials
func New(creds Credentials, opts ...Option) *Transfer {
	t := &Transfer{
		creds:          creds,
		connectTimeout: DefaultConnectTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// session holds one connected SSH+SFTP pair
type session struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *session) close() {
	s.sftp.Close()
	s.ssh.Close()
}

// connect establishes the SSH connection and an SFTP subsystem on it
func (t *Transfer) connect(ctx context.Context) (*session, error) {
	if err := t.creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(t.creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            t.creds.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // Lab weights hosts have dynamic host keys
		Timeout:         t.connectTimeout,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", t.creds.Host, t.creds.Port)
	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}

	return &session{ssh: sshClient, sftp: sftpClient}, nil
}

// FetchWeights downloads a model weights file from the remote host,
// creating the local directory as needed. A cancelled or failed
// transfer leaves no partial file behind.
func (t *Transfer) FetchWeights(ctx context.Context, remotePath, localPath string) error {
	if remotePath == "" {
		return fmt.Errorf("remote path cannot be empty")
	}
	if localPath == "" {
		return fmt.Errorf("local path cannot be empty")
	}

	sess, err := t.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer sess.close()

	remoteFile, err := sess.sftp.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote weights: %w", err)
	}
	defer remoteFile.Close()

	info, err := remoteFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat remote weights: %w", err)
	}

	if dir := filepath.Dir(localPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create local directory: %w", err)
		}
	}

	localFile, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer localFile.Close()

	t.logger.Info("fetching model weights",
		slog.String("remote", remotePath),
		slog.String("local", localPath),
		slog.Int64("size_bytes", info.Size()))

	start := time.Now()
	if err := t.copy(ctx, localFile, remoteFile); err != nil {
		localFile.Close()
		os.Remove(localPath)
		return fmt.Errorf("weights fetch failed: %w", err)
	}

	t.logger.Info("weights fetched",
		slog.String("local", localPath),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// PushArtifact uploads a local report artifact to the remote host,
// creating remote parent directories as needed
func (t *Transfer) PushArtifact(ctx context.Context, localPath, remotePath string) error {
	if localPath == "" {
		return fmt.Errorf("local path cannot be empty")
	}
	if remotePath == "" {
		return fmt.Errorf("remote path cannot be empty")
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("local path is a directory, not a file")
	}

	sess, err := t.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer sess.close()

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	if dir := path.Dir(remotePath); dir != "" && dir != "." && dir != "/" {
		// Parent directories may already exist.
		_ = sess.sftp.MkdirAll(dir)
	}

	remoteFile, err := sess.sftp.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	defer remoteFile.Close()

	if err := t.copy(ctx, remoteFile, localFile); err != nil {
		return fmt.Errorf("artifact push failed: %w", err)
	}

	t.logger.Info("artifact pushed",
		slog.String("local", localPath),
		slog.String("remote", remotePath),
		slog.Int64("size_bytes", info.Size()))
	return nil
}

// ListRemoteWeights returns the GGUF weight files in a remote directory
func (t *Transfer) ListRemoteWeights(ctx context.Context, remoteDir string) ([]string, error) {
	if remoteDir == "" {
		return nil, fmt.Errorf("remote directory cannot be empty")
	}

	sess, err := t.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer sess.close()

	entries, err := sess.sftp.ReadDir(remoteDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// RemoteWeightsExist reports whether a weights file is present remotely
func (t *Transfer) RemoteWeightsExist(ctx context.Context, remotePath string) (bool, error) {
	if remotePath == "" {
		return false, fmt.Errorf("remote path cannot be empty")
	}

	sess, err := t.connect(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer sess.close()

	if _, err := sess.sftp.Stat(remotePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat remote file: %w", err)
	}
	return true, nil
}

// copy runs io.Copy in a goroutine so cancellation interrupts the wait
func (t *Transfer) copy(ctx context.Context, dst io.Writer, src io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
