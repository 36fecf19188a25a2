package materializer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"hostcache/pkg/dirs"
	"hostcache/pkg/frame"
	"hostcache/pkg/iox"
	"hostcache/pkg/registry"
	"hostcache/pkg/storage"
	"hostcache/pkg/storage/disk"
	"hostcache/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 测试辅助
// -----------------------------------------------------------------------------

// fakeStore: 按句柄返回预设内容；nilSource 中的句柄返回 (nil, nil)
type fakeStore struct {
	objects   map[types.ResourceHandle][]byte
	nilSource map[types.ResourceHandle]bool
	streamErr map[types.ResourceHandle]error // 吐完内容后返回的错误
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:   map[types.ResourceHandle][]byte{},
		nilSource: map[types.ResourceHandle]bool{},
		streamErr: map[types.ResourceHandle]error{},
	}
}

func (s *fakeStore) Open(_ context.Context, h types.ResourceHandle) (io.ReadCloser, error) {
	if s.nilSource[h] {
		return nil, nil
	}
	data, ok := s.objects[h]
	if !ok {
		return nil, storage.ErrNotFound
	}
	var r io.Reader = bytes.NewReader(data)
	if err := s.streamErr[h]; err != nil {
		r = io.MultiReader(r, errReader{err})
	}
	return io.NopCloser(r), nil
}

func (s *fakeStore) Has(_ context.Context, h types.ResourceHandle) (bool, error) {
	_, ok := s.objects[h]
	return ok, nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// spyRegistry 记录 Track / Forget
type spyRegistry struct {
	mu       sync.Mutex
	entries  map[string]registry.Entry
	tracks   int
	forgets  int
	trackErr error
}

func newSpyRegistry() *spyRegistry {
	return &spyRegistry{entries: map[string]registry.Entry{}}
}

func (r *spyRegistry) Track(_ context.Context, e registry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks++
	if r.trackErr != nil {
		return r.trackErr
	}
	r.entries[e.Path] = e
	return nil
}

func (r *spyRegistry) List(context.Context) ([]registry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registry.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out, nil
}

func (r *spyRegistry) Forget(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgets++
	if _, ok := r.entries[path]; !ok {
		return registry.ErrNotTracked
	}
	delete(r.entries, path)
	return nil
}

func (r *spyRegistry) Close() error { return nil }

// failingSink 真实创建文件，但在写入 limit 字节后失败
type failingSink struct {
	*os.File
	limit   int
	written int
}

func (s *failingSink) Write(p []byte) (int, error) {
	if s.written+len(p) > s.limit {
		return 0, errors.New("no space left on device")
	}
	n, err := s.File.Write(p)
	s.written += n
	return n, err
}

type fixture struct {
	root  string
	store *fakeStore
	reg   *spyRegistry
	m     *Materializer
	hook  *test.Hook
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	resolver := dirs.NewResolver(frame.Roots{Internal: root}, log)
	store := newFakeStore()
	reg := newSpyRegistry()
	m := New(resolver, store, reg, log).WithChunkSize(4).WithLabels(map[string]string{"process": "com.example.app"})
	return &fixture{root: root, store: store, reg: reg, m: m, hook: hook}
}

func (f *fixture) cachePath(name string) string {
	return filepath.Join(f.root, CacheSubdir, name)
}

// assertNoPartials 断言缓存目录中没有残留的临时文件
func (f *fixture) assertNoPartials(t *testing.T) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(f.root, CacheSubdir, PartialPrefix+"*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// -----------------------------------------------------------------------------
// 测试用例
// -----------------------------------------------------------------------------

func TestMaterializeToCache_Success(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	handle := types.ResourceHandle("content://media/external/video/clip.mp4")
	payload := []byte("0123456789")
	f.store.objects[handle] = payload

	path, ok := f.m.MaterializeToCache(ctx, handle)
	require.True(t, ok)
	assert.Equal(t, f.cachePath("clip.mp4"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	entries, _ := f.reg.List(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, path, entries[0].Path)
	assert.Equal(t, handle.String(), entries[0].Handle)
	assert.Equal(t, int64(len(payload)), entries[0].Size)
	assert.Equal(t, "content", entries[0].Labels["scheme"])
	assert.Equal(t, "com.example.app", entries[0].Labels["process"])
}

func TestMaterializeWithProgress(t *testing.T) {
	f := setup(t)
	handle := types.ResourceHandle("s3://bucket/data/model.bin")
	f.store.objects[handle] = []byte("ABCDEFGHIJ")

	var progress []int64
	_, ok := f.m.MaterializeWithProgress(context.Background(), handle, func(total int64) {
		progress = append(progress, total)
	})
	require.True(t, ok)
	assert.Equal(t, []int64{4, 8, 10}, progress)
}

func TestMaterializeToCache_OpenFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	path, ok := f.m.MaterializeToCache(ctx, "content://media/external/video/missing.mp4")
	assert.False(t, ok)
	assert.Empty(t, path)

	assert.NoFileExists(t, f.cachePath("missing.mp4"))
	f.assertNoPartials(t)
	entries, _ := f.reg.List(ctx)
	assert.Empty(t, entries)

	require.NotNil(t, f.hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, f.hook.LastEntry().Level)
	assert.Equal(t, iox.ResourceUnresolvable.String(), f.hook.LastEntry().Data["kind"])
}

func TestMaterializeToCache_MidStreamReadFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	handle := types.ResourceHandle("/sdcard/DCIM/broken.jpg")
	f.store.objects[handle] = []byte("partial-bytes")
	f.store.streamErr[handle] = errors.New("connection reset")

	_, ok := f.m.MaterializeToCache(ctx, handle)
	assert.False(t, ok)
	assert.NoFileExists(t, f.cachePath("broken.jpg"))
	f.assertNoPartials(t)

	entries, _ := f.reg.List(ctx)
	assert.Empty(t, entries)
	assert.Equal(t, iox.SourceUnreadable.String(), f.hook.LastEntry().Data["kind"])
}

func TestMaterializeToCache_MidStreamWriteFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	handle := types.ResourceHandle("s3://bucket/big.bin")
	f.store.objects[handle] = bytes.Repeat([]byte("x"), 64)

	f.m.openSink = func(dir string) (io.WriteCloser, string, error) {
		file, err := os.CreateTemp(dir, PartialPrefix+"*")
		if err != nil {
			return nil, "", err
		}
		return &failingSink{File: file, limit: 8}, file.Name(), nil
	}

	path, ok := f.m.MaterializeToCache(ctx, handle)
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.NoFileExists(t, f.cachePath("big.bin"))
	f.assertNoPartials(t)
	assert.Zero(t, f.reg.tracks, "failed materialization is never tracked")
	assert.Equal(t, iox.SinkUnwritable.String(), f.hook.LastEntry().Data["kind"])
}

func TestMaterializeToCache_NilSourceKeepsEmptyFile(t *testing.T) {
	f := setup(t)
	handle := types.ResourceHandle("content://provider/unreadable.pdf")
	f.store.nilSource[handle] = true

	path, ok := f.m.MaterializeToCache(context.Background(), handle)
	require.True(t, ok)
	assert.Equal(t, f.cachePath("unreadable.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	f.assertNoPartials(t)

	entries, _ := f.reg.List(context.Background())
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].Size)
}

func TestMaterializeToCache_NoFileName(t *testing.T) {
	f := setup(t)
	for _, h := range []types.ResourceHandle{"content://provider/", "s3://bucket/a/.."} {
		path, ok := f.m.MaterializeToCache(context.Background(), h)
		assert.False(t, ok, "handle %s", h)
		assert.Empty(t, path)
	}
	assert.Zero(t, f.reg.tracks)
}

func TestMaterializeToCache_CreateFailure(t *testing.T) {
	f := setup(t)
	handle := types.ResourceHandle("s3://bucket/occupied")
	f.store.objects[handle] = []byte("data")

	// 目标路径被一个目录占用
	require.NoError(t, os.MkdirAll(f.cachePath("occupied"), 0o700))

	_, ok := f.m.MaterializeToCache(context.Background(), handle)
	assert.False(t, ok)
	assert.DirExists(t, f.cachePath("occupied"), "existing directory must not be touched")
	assert.Equal(t, iox.SinkUnwritable.String(), f.hook.LastEntry().Data["kind"])
	f.assertNoPartials(t)
}

func TestMaterializeToCache_TempCreateFailure(t *testing.T) {
	f := setup(t)
	handle := types.ResourceHandle("s3://bucket/a.bin")
	f.store.objects[handle] = []byte("abc")
	f.m.openSink = func(string) (io.WriteCloser, string, error) {
		return nil, "", errors.New("read-only file system")
	}

	_, ok := f.m.MaterializeToCache(context.Background(), handle)
	assert.False(t, ok)
	assert.Equal(t, iox.SinkUnwritable.String(), f.hook.LastEntry().Data["kind"])
	assert.Zero(t, f.reg.tracks)
}

// 来源恰好就是缓存中的目标文件：重新物化不能截断它
func TestMaterializeToCache_SourceIsDestination(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	adapter, err := disk.NewAdapter("")
	require.NoError(t, err)
	f.m.store = adapter

	dst := f.cachePath("model.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o700))
	require.NoError(t, os.WriteFile(dst, []byte("precious-bytes"), 0o600))

	path, ok := f.m.MaterializeToCache(ctx, types.ResourceHandle(dst))
	require.True(t, ok)
	assert.Equal(t, dst, path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "precious-bytes", string(got))
	f.assertNoPartials(t)

	entries, _ := f.reg.List(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(len("precious-bytes")), entries[0].Size)
}

// 失败的重新物化不影响已经存在的缓存文件
func TestMaterializeToCache_FailureKeepsExistingFile(t *testing.T) {
	f := setup(t)
	handle := types.ResourceHandle("s3://bucket/report.csv")
	f.store.objects[handle] = []byte("new-content")
	f.store.streamErr[handle] = errors.New("connection reset")

	dst := f.cachePath("report.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o700))
	require.NoError(t, os.WriteFile(dst, []byte("old-content"), 0o600))

	_, ok := f.m.MaterializeToCache(context.Background(), handle)
	assert.False(t, ok)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old-content", string(got))
	f.assertNoPartials(t)
}

func TestMaterializeToCache_NoRoot(t *testing.T) {
	log, _ := test.NewNullLogger()
	m := New(dirs.NewResolver(frame.Roots{}, log), newFakeStore(), nil, log)

	path, ok := m.MaterializeToCache(context.Background(), "s3://bucket/a.bin")
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestMaterializeToCache_TrackFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.reg.trackErr = errors.New("registry offline")
	handle := types.ResourceHandle("s3://bucket/a.bin")
	f.store.objects[handle] = []byte("abc")

	path, ok := f.m.MaterializeToCache(context.Background(), handle)
	require.True(t, ok)
	assert.FileExists(t, path)
	assert.Equal(t, 1, f.reg.tracks)
}

func TestCopyFileToFolder(t *testing.T) {
	f := setup(t)
	src := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))

	t.Run("Success", func(t *testing.T) {
		dst := f.m.CopyFileToFolder("exports", "copy.txt", src)
		require.NotEmpty(t, dst)
		assert.True(t, filepath.IsAbs(dst))
		assert.Equal(t, filepath.Join(f.root, "exports", "copy.txt"), dst)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
	})

	t.Run("EscapingDir", func(t *testing.T) {
		assert.Empty(t, f.m.CopyFileToFolder("../outside", "copy.txt", src))
	})

	t.Run("InvalidName", func(t *testing.T) {
		assert.Empty(t, f.m.CopyFileToFolder("exports", "a/b.txt", src))
		assert.Empty(t, f.m.CopyFileToFolder("exports", "", src))
	})

	t.Run("MissingSourceStillReturnsPath", func(t *testing.T) {
		dst := f.m.CopyFileToFolder("exports", "ghost.txt", filepath.Join(t.TempDir(), "nope"))
		assert.Equal(t, filepath.Join(f.root, "exports", "ghost.txt"), dst)
	})
}
