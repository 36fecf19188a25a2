package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// RulesFile 是缓存目录里的保留规则文件名
const RulesFile = ".cacheignore"

// Matcher 封装了保留规则
// 它负责判断缓存目录中的一个未登记文件是否应该在 orphan sweep 时保留
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化保留规则匹配器
// cacheDir: 缓存目录（用于查找 .cacheignore 文件）
func NewMatcher(cacheDir string) (*Matcher, error) {
	// 1. 系统级默认规则，强制生效
	// 登记表默认放在 <root>/.hc，下面几条用于 registry.path 被显式指向缓存目录的情况
	defaultRules := []string{
		RulesFile,         // 规则文件本身
		".hc-registry",    // file 登记表快照
		".hc-registry-*",  // 正在写入的快照临时文件
		"registry.db",     // sqlite 登记表
		"registry.db-*",   // sqlite 的 -wal / -shm / -journal
		".nomedia",        // Android 媒体扫描标记
		"*.lock",
	}

	var ignorer *gitignore.GitIgnore
	var err error

	// 2. 检查缓存目录里是否有 .cacheignore
	rulesPath := filepath.Join(cacheDir, RulesFile)

	if _, errStat := os.Stat(rulesPath); errStat == nil {
		// 文件内容和默认规则合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(rulesPath, defaultRules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(defaultRules...)
	}

	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定路径是否命中保留规则
// path: 相对于缓存目录的路径 (例如 "thumbs/a.jpg")
// 返回: true 表示保留 (Keep), false 表示可以清理
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}
