package station

import "strings"

// Identity 充电站标识
// 取自WebSocket连接的请求路径，原样拼接到中央系统的拨号地址上
type Identity string

// CleanPath 清理固件发出的畸形URL路径
// 例如 //AcTec001 -> /AcTec001
func CleanPath(path string) string {
	cleaned := strings.TrimLeft(path, "/")
	for strings.Contains(cleaned, "//") {
		cleaned = strings.ReplaceAll(cleaned, "//", "/")
	}
	return "/" + cleaned
}

// FromPath 从请求路径提取站点标识
// collapse为false时路径原样保留（仅去掉单个前导斜杠）
func FromPath(path string, collapse bool) Identity {
	if collapse {
		path = CleanPath(path)
	}
	return Identity(strings.TrimPrefix(path, "/"))
}

// Path 站点标识对应的URL路径
func (i Identity) Path() string {
	return "/" + string(i)
}

// String 实现Stringer接口
func (i Identity) String() string {
	return string(i)
}

// IsZero 标识是否为空
func (i Identity) IsZero() bool {
	return i == ""
}
