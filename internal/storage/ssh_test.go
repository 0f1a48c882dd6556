package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestSSHBackend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Format: user:pass:uid:gid:dir
	username := "testuser"
	password := "testpass"
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "atmoz/sftp",
			Env: map[string]string{
				"SFTP_USERS": fmt.Sprintf("%s:%s:::upload", username, password),
			},
			ExposedPorts: []string{"22/tcp"},
			WaitingFor:   wait.ForLog("Server listening on"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "22")
	require.NoError(t, err)

	uri := fmt.Sprintf("sftp://%s:%s@%s:%d/upload/archives/test.bita", username, password, host, port.Int())
	u, err := url.Parse(uri)
	require.NoError(t, err)

	s, err := NewSSHBackend(u)
	require.NoError(t, err)
	defer s.Close()

	t.Run("PutAndReadAt", func(t *testing.T) {
		content := bytes.Repeat([]byte("hello sftp "), 100)
		require.NoError(t, s.Put(ctx, bytes.NewReader(content), int64(len(content))))

		got, err := s.ReadAt(ctx, 11, 30)
		require.NoError(t, err)
		assert.Equal(t, content[11:41], got)

		size, err := s.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), size)

		_, err = s.ReadAt(ctx, uint64(len(content))-5, 10)
		assert.Error(t, err)
	})
}
