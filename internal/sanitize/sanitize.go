package sanitize

import (
	"strings"
	"unicode"
)

// disallowed 覆盖仓库批量装载在 UTF-8 CSV 通道下无法接受的
// pictographic / emoji 码点区间；其余 Unicode 一律保留。
var disallowed = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1}, // zero width joiner
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1}, // misc symbols, dingbats
		{Lo: 0x2B00, Hi: 0x2BFF, Stride: 1}, // misc symbols and arrows
		{Lo: 0xFE0E, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1FAFF, Stride: 1}, // emoji blocks incl. regional indicators
	},
}

// Clean 去除字符串中不允许的符号字符。
//
// 空串进空串出，纯 ASCII 原样返回；整行过滤比拒掉整批便宜。
func Clean(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.Is(disallowed, r) {
			return -1
		}
		return r
	}, s)
}
