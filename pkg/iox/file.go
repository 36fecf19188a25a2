package iox

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
)

// CopyFile 尽力而为地把 src 拷贝到 dst (覆盖)。
// 两端在所有路径上都会被关闭；失败只记录日志，不返回给调用方。
// 需要感知失败的调用方请直接使用 Copy。
func CopyFile(src, dst string, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n, err := copyFile(src, dst)
	fields := logrus.Fields{
		"action": "copy_file",
		"src":    src,
		"dst":    dst,
	}
	if err != nil {
		fields["kind"] = KindOf(err).String()
		log.WithFields(fields).WithError(err).Warn("copy file failed")
		return
	}
	fields["bytes"] = n
	log.WithFields(fields).Debug("copy file done")
}

var errIsDir = errors.New("is a directory")

func copyFile(src, dst string) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, NewError(SourceUnreadable, "open", src, err)
	}
	defer in.Close()

	// 目录可以被 Open，但不能作为拷贝来源；在创建目标之前拒绝
	if info, err := in.Stat(); err != nil {
		return 0, NewError(SourceUnreadable, "stat", src, err)
	} else if info.IsDir() {
		return 0, NewError(SourceUnreadable, "open", src, errIsDir)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, NewError(SinkUnwritable, "create", dst, err)
	}
	defer func() {
		if cErr := out.Close(); cErr != nil && err == nil {
			err = NewError(SinkUnwritable, "close", dst, cErr)
		}
	}()

	// (*os.File).ReadFrom 在 Linux 上走 copy_file_range / sendfile，
	// 不支持时运行时自己退化为缓冲拷贝
	n, err = out.ReadFrom(in)
	if err != nil {
		if transferKind(err, src) == SourceUnreadable {
			return n, NewError(SourceUnreadable, "transfer", src, err)
		}
		return n, NewError(SinkUnwritable, "transfer", dst, err)
	}
	return n, nil
}

// transferKind 区分 ReadFrom 的失败来自哪一端：
// 源文件的读错误是带源路径的 *os.PathError，其余 (写错误、copy_file_range 等) 归为 sink
func transferKind(err error, src string) Kind {
	var pe *os.PathError
	if errors.As(err, &pe) && pe.Path == src {
		return SourceUnreadable
	}
	return SinkUnwritable
}

// Move 把 src 重命名为 dst；参数为空或 src 不存在时返回 false
func Move(src, dst string) bool {
	if src == "" || dst == "" {
		return false
	}
	if _, err := os.Stat(src); err != nil {
		return false
	}
	return os.Rename(src, dst) == nil
}

