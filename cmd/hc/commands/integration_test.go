package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hostcache/pkg/app"
	"hostcache/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupIntegrationEnv 搭建一个使用真实文件系统 + file 登记表的集成环境
func setupIntegrationEnv(t *testing.T) (*app.App, string) {
	t.Helper()
	root := t.TempDir()

	viper.Reset()
	config.SetDefaults(viper.GetViper())
	viper.Set("storage.internal_cache", root)
	viper.Set("frame.package", "com.example.app")
	viper.Set("copy.chunk_size", "8")
	t.Cleanup(viper.Reset)

	application, err := app.NewApp(context.Background())
	require.NoError(t, err)

	// cmd 包依赖全局变量 HC，测试里临时覆盖它
	HC = application
	t.Cleanup(func() {
		application.Close()
		HC = nil
	})
	return application, root
}

// run 直接调用子命令的 RunE，返回 stdout
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestIntegration_Dir(t *testing.T) {
	_, root := setupIntegrationEnv(t)

	noCreate = true
	out, err := run(t, dirCmd, "thumbs")
	noCreate = false
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "thumbs"), strings.TrimSpace(out))
	assert.NoDirExists(t, filepath.Join(root, "thumbs"), "--no-create must not touch the filesystem")

	out, err = run(t, dirCmd, "thumbs")
	require.NoError(t, err)
	assert.DirExists(t, strings.TrimSpace(out))

	_, err = run(t, dirCmd, "../escape")
	assert.ErrorIs(t, err, errNoDir)
}

func TestIntegration_Copy(t *testing.T) {
	_, _ = setupIntegrationEnv(t)
	tmp := t.TempDir()
	src := filepath.Join(tmp, "in.bin")
	dst := filepath.Join(tmp, "out.bin")
	payload := bytes.Repeat([]byte("hostcache"), 100)
	require.NoError(t, os.WriteFile(src, payload, 0o600))

	chunkSizeFlag = "16"
	showProgress = true
	t.Cleanup(func() { chunkSizeFlag, showProgress = "", false })

	_, err := run(t, copyCmd, src, dst)
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// 写到 stdout
	out, err := run(t, copyCmd, src, "-")
	require.NoError(t, err)
	assert.Equal(t, string(payload), out)

	_, err = run(t, copyCmd, filepath.Join(tmp, "missing"), dst)
	assert.Error(t, err)

	chunkSizeFlag = "huge"
	_, err = run(t, copyCmd, src, dst)
	assert.ErrorContains(t, err, "invalid --chunk-size")

	// 超过上限的块大小直接报错，而不是在分配缓冲区时 panic
	chunkSizeFlag = "4EiB"
	assert.NotPanics(t, func() {
		_, err = run(t, copyCmd, src, dst)
	})
	assert.ErrorContains(t, err, "exceeds")
}

func TestIntegration_FetchAndSweep(t *testing.T) {
	a, root := setupIntegrationEnv(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("some video frames"), 0o600))

	fetchProgress = true
	out, err := run(t, fetchCmd, src)
	fetchProgress = false
	require.NoError(t, err)

	cached := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(root, "cache", "clip.mp4"), cached)
	assert.FileExists(t, cached)

	_, err = run(t, fetchCmd, "s3://bucket/not-configured.bin")
	assert.Error(t, err, "s3 is not mounted without a bucket")

	// 一个未登记的孤儿文件
	orphan := filepath.Join(root, "cache", "orphan.tmp")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o600))

	sweepOrphans = true
	out, err = run(t, sweepCmd)
	sweepOrphans = false
	require.NoError(t, err)
	assert.Contains(t, out, "tracked: removed 1")
	assert.Contains(t, out, "orphans: removed 1")

	assert.NoFileExists(t, cached)
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, filepath.Join(root, app.MetaSubdir, "registry"), "orphan sweep never touches the registry")

	entries, err := a.Registry.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIntegration_CpFile(t *testing.T) {
	_, root := setupIntegrationEnv(t)
	src := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0o600))

	out, err := run(t, cpFileCmd, src, "exports", "copy.pdf")
	require.NoError(t, err)
	dst := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(root, "exports", "copy.pdf"), dst)
	assert.FileExists(t, dst)

	_, err = run(t, cpFileCmd, src, "/abs", "copy.pdf")
	assert.Error(t, err)
}

func TestIntegration_Proc(t *testing.T) {
	_, root := setupIntegrationEnv(t)

	out, err := run(t, procCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "com.example.app")
	assert.Contains(t, out, "main process:")
	assert.Contains(t, out, root)
}
