package naming

import (
	"regexp"
	"strconv"
	"strings"
)

// UnknownPrefix 未提取到标识时的文件名前缀
const UnknownPrefix = "unknown_"

// numericName 匹配十进制数，例如 1023、1023.0、-7.50、007、.5
var numericName = regexp.MustCompile(`^([+-]?)(\d*)(?:\.\d*)?$`)

// Resolve 根据提取结果、页码和可选的映射表计算最终文件名
// mapping 为 nil 表示不做映射；映射未命中时回退为标识本身
func Resolve(extracted string, found bool, pageIndex int, mapping map[string]string) string {
	identifier := extracted
	if !found {
		identifier = FallbackName(pageIndex)
	}

	name := identifier
	if mapping != nil {
		if mapped, ok := mapping[identifier]; ok {
			name = mapped
		}
	}

	return NormalizeNumeric(name)
}

// FallbackName 返回指定页的兜底名称
func FallbackName(pageIndex int) string {
	return UnknownPrefix + strconv.Itoa(pageIndex)
}

// NormalizeNumeric 将数字形式的名称改写为规范的整数形式
// 小数部分直接截断，去掉正号和前导零；按文本处理，超长的数字不会丢失精度。
// 非数字名称原样返回
func NormalizeNumeric(name string) string {
	m := numericName.FindStringSubmatch(name)
	if m == nil || !strings.ContainsAny(name, "0123456789") {
		return name
	}

	digits := strings.TrimLeft(m[2], "0")
	if digits == "" {
		// -0、-0.5、.5 之类统一为 0
		return "0"
	}
	if m[1] == "-" {
		return "-" + digits
	}
	return digits
}
