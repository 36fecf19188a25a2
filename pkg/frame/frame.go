// Package frame 持有宿主进程级别的只读状态 (包名、调试开关、进程名)。
// 启动时构造一次，通过依赖注入传给需要它的组件，不使用全局变量。
package frame

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const defaultCmdlinePath = "/proc/self/cmdline"

// Frame 是宿主运行时的上下文
type Frame struct {
	PackageName string
	Debug       bool

	cmdlinePath string
	once        sync.Once
	processName string
}

// New 创建 Frame
func New(packageName string, debug bool) *Frame {
	return &Frame{
		PackageName: packageName,
		Debug:       debug,
		cmdlinePath: defaultCmdlinePath,
	}
}

// ProcessName 返回当前进程名，首次调用后缓存
func (f *Frame) ProcessName() string {
	f.once.Do(func() {
		f.processName = resolveProcessName(f.cmdlinePath)
	})
	return f.processName
}

// IsMainProcess 判断当前进程是否是主进程 (进程名 == 包名)
func (f *Frame) IsMainProcess() bool {
	if f.PackageName == "" {
		return false
	}
	return f.ProcessName() == f.PackageName
}

// resolveProcessName 优先读 cmdline，失败时退化为可执行文件名
func resolveProcessName(cmdlinePath string) string {
	if cmdlinePath == "" {
		cmdlinePath = defaultCmdlinePath
	}
	if name, err := readCmdline(cmdlinePath); err == nil && name != "" {
		return name
	}
	if exe, err := os.Executable(); err == nil {
		return filepath.Base(exe)
	}
	return ""
}

// readCmdline 读取 cmdline 直到第一个 NUL
func readCmdline(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\x00')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.Trim(line, "\x00\r\n\t "), nil
}
