package frame

import (
	"os"
	"path/filepath"
)

// Roots 描述宿主提供的两个缓存根目录
// External 对应外部存储缓存 (可能未挂载)，Internal 对应应用私有缓存
type Roots struct {
	External       string
	Internal       string
	PreferExternal bool
}

// AndroidRoots 按 Android 的目录约定推导缓存根目录
func AndroidRoots(packageName string) Roots {
	return Roots{
		External:       filepath.Join("/storage/emulated/0/Android/data", packageName, "cache"),
		Internal:       filepath.Join("/data/data", packageName, "cache"),
		PreferExternal: true,
	}
}

// PreferredRoot 外部缓存：必须被允许使用且已经存在
func (r Roots) PreferredRoot() (string, bool) {
	if !r.PreferExternal {
		return "", false
	}
	return availableDir(r.External)
}

// FallbackRoot 内部缓存
func (r Roots) FallbackRoot() (string, bool) {
	return availableDir(r.Internal)
}

// StorageRoot 返回可用的根目录：preferExternal 且外部缓存可用时返回外部，否则返回内部。
// 两者都不可用时返回 ""。
func (r Roots) StorageRoot(preferExternal bool) string {
	if preferExternal {
		if dir, ok := availableDir(r.External); ok {
			return dir
		}
	}
	if dir, ok := availableDir(r.Internal); ok {
		return dir
	}
	return ""
}

func availableDir(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}
