package extract

import (
	"regexp"
)

// priceTokenRe 在任意文本中定位"货币标识 + 金额"的组合。
//
// 四个分支按优先级排列（同一位置上靠前的分支先匹配）：
//  1. 符号前缀:  $11.22 / ¥ 1,200 / €2,00
//  2. 符号后缀:  2,00€ / 129 kr / 9,99 zł
//  3. 代码前缀:  USD 49.99
//  4. 代码后缀:  49.99 USD
//
// 金额必须以数字开头和结尾，中间允许 . 和 , 作为小数/千位分隔符，
// 因此不会把尾随的标点吞进金额里。
var priceTokenRe = regexp.MustCompile(
	`([$£¥₹€])\s*([0-9]+(?:[.,][0-9]+)*)` +
		`|([0-9]+(?:[.,][0-9]+)*)\s*(€|kr|zł|[$£¥₹])` +
		`|\b([A-Za-z]{3})\s*([0-9]+(?:[.,][0-9]+)*)` +
		`|([0-9]+(?:[.,][0-9]+)*)\s*([A-Za-z]{3})\b`,
)

// ParsePriceText 从任意文本中提取第一个有效的价格。
//
// 文本中可能同时出现多个货币标识，取第一个有效的；三字母代码只有在
// ISO 表中收录时才算有效（否则 "for 5" 这类普通单词会被误判）。
// 没有货币标识的裸数字不是价格，返回 ok=false。
func ParsePriceText(text string) (Money, bool) {
	// 被否掉的候选整体跳过会把后面的有效价格一起吞掉，比如
	// "ABC 5.50 EUR" 里 "ABC 5.50" 无效，但 "5.50 EUR" 有效，
	// 所以拒绝后只前进一个字符重扫。
	for pos := 0; pos < len(text); {
		loc := priceTokenRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		group := func(i int) string {
			start, end := loc[2*i], loc[2*i+1]
			if start < 0 {
				return ""
			}
			return text[pos+start : pos+end]
		}
		switch {
		case group(1) != "":
			// 符号前缀
			return Normalize(group(1), group(2)), true
		case group(4) != "":
			// 符号后缀
			return Normalize(group(4), group(3)), true
		case group(5) != "":
			// 代码前缀，需校验代码有效
			if knownISOCode(group(5)) {
				return Normalize(group(5), group(6)), true
			}
		case group(8) != "":
			// 代码后缀
			if knownISOCode(group(8)) {
				return Normalize(group(8), group(7)), true
			}
		}
		pos += loc[0] + 1
	}
	return Money{}, false
}
