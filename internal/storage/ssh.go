package storage

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/lupppig/bita/internal/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// SSHBackend reads ranges of a remote file over SFTP.
type SSHBackend struct {
	remotePath string
	host       string
	user       *url.Userinfo

	mu         sync.Mutex
	client     *ssh.Client
	sftpClient *sftp.Client
	file       *sftp.File
}

func NewSSHBackend(u *url.URL) (*SSHBackend, error) {
	host := u.Host
	if host == "" {
		return nil, apperrors.New(apperrors.TypeConfig, "SFTP URI is missing a host", "Use sftp://user@host/path/file.bita.")
	}
	if !strings.Contains(host, ":") {
		host = host + ":22"
	}

	remotePath := strings.TrimPrefix(u.Path, "/./")

	user := u.User
	if user == nil {
		user = url.User(os.Getenv("USER"))
	}

	return &SSHBackend{
		remotePath: remotePath,
		host:       host,
		user:       user,
	}, nil
}

func (s *SSHBackend) connect() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftpClient != nil {
		return s.sftpClient, nil
	}

	user := s.user.Username()
	pass, _ := s.user.Password()

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	if pass != "" {
		config.Auth = append(config.Auth, ssh.Password(pass))
	} else {
		// 1. Try SSH Agent
		if authSock := os.Getenv("SSH_AUTH_SOCK"); authSock != "" {
			if conn, err := net.Dial("unix", authSock); err == nil {
				ag := agent.NewClient(conn)
				signers, err := ag.Signers()
				if err == nil && len(signers) > 0 {
					config.Auth = append(config.Auth, ssh.PublicKeysCallback(ag.Signers))
				}
			}
		}

		// 2. Try common private keys
		home, err := os.UserHomeDir()
		if err == nil {
			for _, k := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
				key, err := os.ReadFile(filepath.Join(home, ".ssh", k))
				if err != nil {
					continue
				}
				if signer, err := ssh.ParsePrivateKey(key); err == nil {
					config.Auth = append(config.Auth, ssh.PublicKeys(signer))
				}
			}
		}
	}

	if len(config.Auth) == 0 {
		return nil, apperrors.New(apperrors.TypeAuth, "no supported SSH authentication methods found", "Ensure you have an SSH agent running or provide valid private keys/passwords.")
	}

	client, err := ssh.Dial("tcp", s.host, config)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConnection, "failed to connect via SSH", "Check host reachability, SSH port, and credentials.")
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, apperrors.Wrap(err, apperrors.TypeInternal, "failed to create SFTP client", "Verify the SFTP subsystem is enabled on the remote host.")
	}

	s.client = client
	s.sftpClient = sftpClient
	return sftpClient, nil
}

func (s *SSHBackend) openFile() (*sftp.File, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file, nil
	}
	f, err := c.Open(s.remotePath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeResource, "failed to open remote archive "+s.remotePath, "Check the path and permissions on the remote host.")
	}
	s.file = f
	return f, nil
}

func (s *SSHBackend) ReadAt(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.openFile()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if uint64(n) < length && (err == nil || err == io.EOF) {
		return nil, shortRead(s.Location(), offset, length, n)
	}
	if err != nil && err != io.EOF {
		return nil, rangeError(err, s.Location(), offset, length)
	}
	return buf, nil
}

func (s *SSHBackend) Size(ctx context.Context) (int64, error) {
	f, err := s.openFile()
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeIO, "failed to stat remote archive", "")
	}
	return info.Size(), nil
}

func (s *SSHBackend) Put(ctx context.Context, r io.Reader, size int64) error {
	c, err := s.connect()
	if err != nil {
		return err
	}
	dir := path.Dir(s.remotePath)
	if err := c.MkdirAll(dir); err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource, "failed to create remote directory "+dir, "")
	}

	tmpPath := s.remotePath + ".tmp"
	f, err := c.Create(tmpPath)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeResource, "failed to create remote file "+tmpPath, "")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		c.Remove(tmpPath)
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to upload archive", "")
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to upload archive", "")
	}

	s.mu.Lock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.mu.Unlock()

	if err := c.PosixRename(tmpPath, s.remotePath); err != nil {
		return apperrors.Wrap(err, apperrors.TypeIO, "failed to finalize remote archive (rename)", "")
	}
	return nil
}

func (s *SSHBackend) Location() string {
	return "sftp://" + s.host + "/" + strings.TrimPrefix(s.remotePath, "/")
}

func (s *SSHBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if s.sftpClient != nil {
		s.sftpClient.Close()
		s.sftpClient = nil
	}
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}
