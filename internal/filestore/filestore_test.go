package filestore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/policyrag/internal/config"
	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	body := "annual leave policy"
	require.NoError(t, store.Save(ctx, "t1/abc_leave.txt", strings.NewReader(body), int64(len(body)), "text/plain"))

	obj, err := store.Open(ctx, "t1/abc_leave.txt")
	require.NoError(t, err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(data))
	require.Equal(t, int64(len(body)), obj.Size)
	require.Equal(t, "local", store.Type())
	require.Contains(t, store.URL("t1/abc_leave.txt"), "t1/abc_leave.txt")
}

func TestLocalStoreShortWrite(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	err = store.Save(context.Background(), "t1/x.txt", strings.NewReader("abc"), 10, "")
	require.Error(t, err)
	_, err = store.Open(context.Background(), "t1/x.txt")
	require.True(t, appErr.IsNotFound(err))
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	for _, key := range []string{"", "/etc/passwd", "../x", "t1/../../x", ".."} {
		err := store.Save(context.Background(), key, strings.NewReader("x"), 1, "")
		require.True(t, appErr.IsInput(err), key)
	}
}

func TestLocalStorePublicURL(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Dir: t.TempDir(), PublicURL: "https://files.example.com/"})
	require.NoError(t, err)
	require.Equal(t, "https://files.example.com/t1/a.pdf", store.URL("t1/a.pdf"))
}

func TestNewUnknownStore(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.True(t, appErr.IsConfig(err))
	_, err = New(config.FileStoreConfig{Type: "local"})
	require.True(t, appErr.IsConfig(err))
}

type fakeObjectAPI struct {
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   aws.String(f.types[aws.ToString(in.Key)]),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func TestS3StoreUsesPrefixAndBucket(t *testing.T) {
	api := &fakeObjectAPI{objects: map[string][]byte{}, types: map[string]string{}}
	store := newS3Store(api, &s3Config{Bucket: "docs", Prefix: "/rag/", Endpoint: "minio:9000"})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "t1/a.pdf", strings.NewReader("%PDF"), 4, "application/pdf"))
	require.Contains(t, api.objects, "docs/rag/t1/a.pdf")

	obj, err := store.Open(ctx, "t1/a.pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", obj.ContentType)
	require.Equal(t, int64(4), obj.Size)

	_, err = store.Open(ctx, "t1/missing.pdf")
	require.True(t, appErr.IsNotFound(err))

	require.Equal(t, "docs", store.Bucket())
	require.Equal(t, "http://minio:9000/docs/rag/t1/a.pdf", store.URL("t1/a.pdf"))
}
