package extract

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page 是一次抓取得到的文档的只读结构化视图。
//
// 它归单次提取调用独占，不跨调用保留。可见文本在首次访问时计算并缓存，
// 隐藏元素（inline display:none 或 hidden 属性）及其子树不参与任何文本判断。
type Page struct {
	url string
	doc *goquery.Document

	visibleOnce sync.Once
	visibleText string
	textNodes   []string
}

// NewPage 从 HTML 流解析出 Page。
func NewPage(url string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Page{url: url, doc: doc}, nil
}

// NewPageFromHTML 从 HTML 字符串解析出 Page，主要用于测试。
func NewPageFromHTML(url, htmlText string) (*Page, error) {
	return NewPage(url, strings.NewReader(htmlText))
}

// URL 返回页面来源 URL。
func (p *Page) URL() string {
	return p.url
}

// Title 返回页面 <title> 文本。
func (p *Page) Title() string {
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// Find 按 CSS 选择器查找元素。
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// JSONLDBlocks 按文档顺序返回所有 application/ld+json 脚本块的内容。
func (p *Page) JSONLDBlocks() []string {
	var blocks []string
	p.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}

// VisibleText 返回剔除隐藏元素后的页面全文（文本节点按空格拼接）。
func (p *Page) VisibleText() string {
	p.collectVisible()
	return p.visibleText
}

// TextNodes 按文档顺序返回所有可见文本节点的内容。
func (p *Page) TextNodes() []string {
	p.collectVisible()
	return p.textNodes
}

func (p *Page) collectVisible() {
	p.visibleOnce.Do(func() {
		for _, node := range p.doc.Nodes {
			p.textNodes = append(p.textNodes, visibleTextNodes(node)...)
		}
		p.visibleText = strings.Join(p.textNodes, " ")
	})
}

// visibleTextNodes 遍历节点子树，收集可见文本节点。
// script/style 等非呈现元素和隐藏元素整棵子树被跳过。
func visibleTextNodes(n *html.Node) []string {
	var out []string
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "script", "style", "noscript", "template":
				return
			}
			if nodeHidden(node) {
				return
			}
		}
		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				out = append(out, text)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func nodeHidden(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "hidden" {
			return true
		}
		if attr.Key == "style" && styleHidesElement(attr.Val) {
			return true
		}
	}
	return false
}

// styleHidesElement 判断 inline style 是否包含 display:none（允许任意空白）。
func styleHidesElement(style string) bool {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, style)
	return strings.Contains(compact, "display:none")
}

// selectionVisibleText 返回选区内元素的可见文本。
func selectionVisibleText(s *goquery.Selection) string {
	var parts []string
	for _, node := range s.Nodes {
		parts = append(parts, visibleTextNodes(node)...)
	}
	return strings.Join(parts, " ")
}
