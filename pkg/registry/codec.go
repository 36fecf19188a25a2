package registry

import (
	"github.com/fxamacker/cbor/v2"
)

// 条目的二进制编码：规范化 CBOR，保证同一条目编码结果唯一
var encOptions = cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	Time:        cbor.TimeRFC3339Nano,
	TimeTag:     cbor.EncTagNone,
	IndefLength: cbor.IndefLengthForbidden,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小，防止损坏的快照耗尽内存
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      1 << 20,
	MaxNestedLevels:  16,
	IndefLength:      cbor.IndefLengthForbidden,
}

var dm, _ = decOptions.DecMode()

// Marshal 使用规范化 CBOR 编码
func Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

// Unmarshal 解码 CBOR 数据
func Unmarshal(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
