package logging

import "github.com/sirupsen/logrus"

// OpFields 构建 action + path 基础字段
func OpFields(op, path string) logrus.Fields {
	return logrus.Fields{
		"action": op,
		"path":   path,
	}
}

// ProcessFields 进程上下文字段，作为 App 日志的公共字段
func ProcessFields(pkg, process string, main bool) logrus.Fields {
	return logrus.Fields{
		"package":      pkg,
		"process":      process,
		"main_process": main,
	}
}
