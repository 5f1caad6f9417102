package extract

import "strings"

// Position 表示货币符号相对金额的渲染位置。
type Position int

const (
	PositionPrefix Position = iota
	PositionSuffix
)

// symbolPosition 是静态的符号→位置表。
// 每个符号有且只有一个渲染位置；未收录的符号默认前缀。
var symbolPosition = map[string]Position{
	"$": PositionPrefix,
	"£": PositionPrefix,
	"¥": PositionPrefix,
	"₹": PositionPrefix,
	"€": PositionSuffix,
	"kr": PositionSuffix,
	"zł": PositionSuffix,
}

// isoToSymbol 是静态的 ISO 货币代码→符号表。
// 每个代码映射到唯一一个符号。
var isoToSymbol = map[string]string{
	"USD": "$",
	"AUD": "$",
	"CAD": "$",
	"NZD": "$",
	"SGD": "$",
	"HKD": "$",
	"GBP": "£",
	"JPY": "¥",
	"CNY": "¥",
	"INR": "₹",
	"EUR": "€",
	"SEK": "kr",
	"NOK": "kr",
	"DKK": "kr",
	"PLN": "zł",
}

// Money 是规范化后的价格：符号 + 保留原始格式的金额文本 + 符号位置。
type Money struct {
	Symbol   string
	Amount   string
	Position Position
}

// String 按符号位置渲染规范化价格字符串。
func (m Money) String() string {
	if m.Position == PositionSuffix {
		return m.Amount + m.Symbol
	}
	return m.Symbol + m.Amount
}

// Normalize 将自由格式的货币标识和金额文本规范化为 Money。
//
// currency 如果是 ISO 表中收录的三字母代码，则映射到对应符号；
// 否则按字面当作符号处理。金额文本原样保留（包括小数分隔符与千位分隔符），
// 规范化只改变符号映射与位置，不改变数字文本，因此对自身输出是幂等的。
func Normalize(currency, amount string) Money {
	symbol := strings.TrimSpace(currency)
	if len(symbol) == 3 {
		if mapped, ok := isoToSymbol[strings.ToUpper(symbol)]; ok {
			symbol = mapped
		}
	}

	position, ok := symbolPosition[symbol]
	if !ok {
		position = PositionPrefix
	}

	return Money{
		Symbol:   symbol,
		Amount:   strings.TrimSpace(amount),
		Position: position,
	}
}

// knownISOCode 判断 code 是否是收录的 ISO 货币代码。
func knownISOCode(code string) bool {
	_, ok := isoToSymbol[strings.ToUpper(code)]
	return ok
}
