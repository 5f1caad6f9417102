package extract

import "strings"

// Status 表示商品的库存判定结果。
type Status int

const (
	StatusInStock Status = iota
	StatusOutOfStock
)

// String 返回用于通知文案的标签。
func (s Status) String() string {
	if s == StatusOutOfStock {
		return "Out of stock"
	}
	return "In stock"
}

// Key 返回用于持久化的稳定标识。
func (s Status) Key() string {
	if s == StatusOutOfStock {
		return "out_of_stock"
	}
	return "in_stock"
}

// 缺货短语表。匹配对大小写不敏感，按子串判断。
var outOfStockPhrases = []string{
	"sold out",
	"out of stock",
	"not available",
}

// ClassifyStatus 根据页面可见文本判定库存状态。
// 任一缺货短语出现即判缺货，否则视为有货。隐藏元素的文本不参与判定。
func ClassifyStatus(p *Page) Status {
	text := strings.ToLower(p.VisibleText())
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(text, phrase) {
			return StatusOutOfStock
		}
	}
	return StatusInStock
}
