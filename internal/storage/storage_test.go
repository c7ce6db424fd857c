package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/config"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestNew_Local(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Type: "ftp", LocalPath: t.TempDir()})
	assert.Error(t, err)
}

func TestLocalStore_PutOpenList(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "send_log_20240101_000000_aaaa.csv", []byte("first")))
	require.NoError(t, s.Put(ctx, "send_log_20240102_000000_bbbb.csv", []byte("second")))
	require.NoError(t, s.Put(ctx, "send_log_20240101_000000_aaaa.csv", []byte("replaced")))

	rc, err := s.Open(ctx, "send_log_20240101_000000_aaaa.csv")
	require.NoError(t, err)
	assert.Equal(t, "replaced", readAll(t, rc))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"send_log_20240102_000000_bbbb.csv", "send_log_20240101_000000_aaaa.csv"}, names)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestLocalStore_Errors(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(ctx, "missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"", "../etc/passwd", "a/b.csv", ".hidden", ".."} {
		assert.ErrorIs(t, s.Put(ctx, name, []byte("x")), ErrInvalidName, name)
		_, err := s.Open(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = b
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	s := NewS3StoreWithClient(client, "bucket", "logs/")

	require.NoError(t, s.Put(ctx, "a.csv", []byte("hello")))
	assert.Contains(t, client.objects, "logs/a.csv")

	rc, err := s.Open(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, rc))

	_, err = s.Open(ctx, "b.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, names)
}

func TestMirroredStore(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	client := newFakeS3()
	m := &MirroredStore{Local: local, Remote: NewS3StoreWithClient(client, "bucket", "")}

	require.NoError(t, m.Put(ctx, "log.csv", []byte("rows")))
	assert.Equal(t, []byte("rows"), client.objects["log.csv"])

	// Remote-only objects are still readable.
	client.objects["old.csv"] = []byte("archived")
	rc, err := m.Open(ctx, "old.csv")
	require.NoError(t, err)
	assert.Equal(t, "archived", readAll(t, rc))
}

func TestMirroredStore_RemoteFailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	client := newFakeS3()
	client.putErr = errors.New("access denied")
	m := &MirroredStore{Local: local, Remote: NewS3StoreWithClient(client, "bucket", "")}

	err = m.Put(ctx, "log.csv", []byte("rows"))
	require.Error(t, err)

	rc, err := local.Open(ctx, "log.csv")
	require.NoError(t, err)
	assert.Equal(t, "rows", readAll(t, rc))
}
