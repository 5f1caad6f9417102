package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stockwatch/internal/pkg/metrics"
)

// PriceNotFound 是所有提取策略都失败时返回的哨兵值。
const PriceNotFound = "Price not found"

// strategy 是一种价格提取手段。按固定顺序尝试，首个命中者胜出。
type strategy interface {
	name() string
	tryExtract(p *Page) (Money, bool)
}

var strategies = []strategy{
	schemaOrgMeta{},
	openGraphMeta{},
	jsonLDData{},
	classNameHeuristic{},
	fullTextScan{},
	regexFallback{},
}

// Price 依次尝试各提取策略，返回渲染后的价格字符串。
// 全部失败时返回 PriceNotFound。
func Price(p *Page) string {
	for _, s := range strategies {
		if money, ok := s.tryExtract(p); ok {
			metrics.ExtractorStrategyHits.WithLabelValues(s.name()).Inc()
			return money.String()
		}
	}
	metrics.ExtractorMisses.Inc()
	return PriceNotFound
}

// schemaOrgMeta 读取 schema.org 标注的 meta 价格。
type schemaOrgMeta struct{}

func (schemaOrgMeta) name() string { return "schema_org_meta" }

func (schemaOrgMeta) tryExtract(p *Page) (Money, bool) {
	// 金额和货币缺一不可，只有金额就是裸数字，留给后面的策略
	amount, ok := metaContent(p, `meta[itemprop="price"]`)
	if !ok {
		return Money{}, false
	}
	currency, ok := metaContent(p, `meta[itemprop="priceCurrency"]`)
	if !ok {
		return Money{}, false
	}
	return Normalize(currency, amount), true
}

// openGraphMeta 读取 Open Graph 商品价格标签。
type openGraphMeta struct{}

func (openGraphMeta) name() string { return "open_graph_meta" }

func (openGraphMeta) tryExtract(p *Page) (Money, bool) {
	amount, ok := metaContent(p, `meta[property="product:price:amount"]`)
	if !ok {
		return Money{}, false
	}
	currency, ok := metaContent(p, `meta[property="product:price:currency"]`)
	if !ok {
		return Money{}, false
	}
	return Normalize(currency, amount), true
}

func metaContent(p *Page, selector string) (string, bool) {
	var content string
	var found bool
	p.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, exists := s.Attr("content")
		v = strings.TrimSpace(v)
		if exists && v != "" {
			content = v
			found = true
			return false
		}
		return true
	})
	return content, found
}

// jsonLDData 解析 JSON-LD 结构化数据中的报价。
type jsonLDData struct{}

func (jsonLDData) name() string { return "json_ld" }

func (jsonLDData) tryExtract(p *Page) (Money, bool) {
	for _, block := range p.JSONLDBlocks() {
		var data any
		if err := json.Unmarshal([]byte(block), &data); err != nil {
			continue
		}
		if money, ok := jsonLDPrice(data); ok {
			return money, true
		}
	}
	return Money{}, false
}

// jsonLDPrice 在单个 JSON-LD 值中查找价格。对象按 offers、自身价格字段、
// product 的顺序检查；数组逐项检查。
func jsonLDPrice(data any) (Money, bool) {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if money, ok := jsonLDPrice(item); ok {
				return money, true
			}
		}
	case map[string]any:
		if offers, ok := v["offers"]; ok {
			if money, ok := jsonLDPrice(offers); ok {
				return money, true
			}
		}
		amount, okAmount := jsonStringValue(v["price"])
		currency, okCurrency := jsonStringValue(v["priceCurrency"])
		if okAmount && okCurrency {
			return Normalize(currency, amount), true
		}
		if product, ok := v["product"]; ok {
			if money, ok := jsonLDPrice(product); ok {
				return money, true
			}
		}
	}
	return Money{}, false
}

func jsonStringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

// classNameHeuristic 在 class 名包含价格字样的元素里找价格文本。
type classNameHeuristic struct{}

func (classNameHeuristic) name() string { return "class_name" }

var priceClassRe = regexp.MustCompile(`(?i)(^|[^a-z])(price|amount)([^a-z]|$)`)

func (classNameHeuristic) tryExtract(p *Page) (Money, bool) {
	var money Money
	var found bool
	p.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		if !priceClassRe.MatchString(class) {
			return true
		}
		if m, ok := ParsePriceText(selectionVisibleText(s)); ok {
			money = m
			found = true
			return false
		}
		return true
	})
	return money, found
}

// fullTextScan 在整页可见文本上解析首个带货币标记的价格。
type fullTextScan struct{}

func (fullTextScan) name() string { return "full_text" }

func (fullTextScan) tryExtract(p *Page) (Money, bool) {
	return ParsePriceText(p.VisibleText())
}

// regexFallback 在逐个文本节点上用宽松正则兜底。
type regexFallback struct{}

func (regexFallback) name() string { return "regex_fallback" }

var fallbackPriceRe = regexp.MustCompile(
	`([$£¥₹])\s*([0-9][0-9.,]*)|([0-9][0-9.,]*)\s*(€|kr|zł)`,
)

func (regexFallback) tryExtract(p *Page) (Money, bool) {
	for _, node := range p.TextNodes() {
		// 粗匹配只负责圈候选，候选必须再过一遍通用解析才算数
		for _, token := range fallbackPriceRe.FindAllString(node, -1) {
			if money, ok := ParsePriceText(token); ok {
				return money, true
			}
		}
	}
	return Money{}, false
}
