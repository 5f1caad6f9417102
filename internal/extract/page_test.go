package extract

import (
	"strings"
	"testing"
)

func mustPage(t *testing.T, htmlText string) *Page {
	t.Helper()
	p, err := NewPageFromHTML("https://shop.example/item/1", htmlText)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	return p
}

func TestVisibleTextSkipsHidden(t *testing.T) {
	p := mustPage(t, `<html><body>
		<p>Shown text</p>
		<p style="display: none">Hidden inline</p>
		<div style="DISPLAY:NONE"><span>Hidden nested</span></div>
		<p hidden>Hidden attr</p>
		<script>var x = "script text";</script>
		<style>.a { color: red }</style>
	</body></html>`)

	text := p.VisibleText()
	if !strings.Contains(text, "Shown text") {
		t.Errorf("visible text missing shown content: %q", text)
	}
	for _, banned := range []string{"Hidden inline", "Hidden nested", "Hidden attr", "script text", "color: red"} {
		if strings.Contains(text, banned) {
			t.Errorf("visible text contains hidden content %q", banned)
		}
	}
}

func TestStyleHidesElement(t *testing.T) {
	tests := []struct {
		style string
		want  bool
	}{
		{"display:none", true},
		{"display: none", true},
		{"color: red; display :  none ;", true},
		{"DISPLAY:NONE", true},
		{"display:block", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := styleHidesElement(tt.style); got != tt.want {
			t.Errorf("styleHidesElement(%q) = %v, want %v", tt.style, got, tt.want)
		}
	}
}

func TestPageTitle(t *testing.T) {
	p := mustPage(t, `<html><head><title>  Blue Widget - Example Shop  </title></head><body></body></html>`)
	if got := p.Title(); got != "Blue Widget - Example Shop" {
		t.Errorf("Title() = %q", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Status
	}{
		{
			"plain in stock",
			`<html><body><p>Ready to ship</p></body></html>`,
			StatusInStock,
		},
		{
			"sold out",
			`<html><body><p>This item is SOLD OUT</p></body></html>`,
			StatusOutOfStock,
		},
		{
			"out of stock",
			`<html><body><div>Currently out of stock.</div></body></html>`,
			StatusOutOfStock,
		},
		{
			"not available",
			`<html><body><span>Item not available in your region</span></body></html>`,
			StatusOutOfStock,
		},
		{
			"hidden phrase ignored",
			`<html><body><p>Buy now</p><p style="display:none">sold out</p></body></html>`,
			StatusInStock,
		},
		{
			"empty page",
			`<html><body></body></html>`,
			StatusInStock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(mustPage(t, tt.html)); got != tt.want {
				t.Errorf("ClassifyStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusLabels(t *testing.T) {
	if StatusInStock.String() != "In stock" || StatusInStock.Key() != "in_stock" {
		t.Error("unexpected in-stock labels")
	}
	if StatusOutOfStock.String() != "Out of stock" || StatusOutOfStock.Key() != "out_of_stock" {
		t.Error("unexpected out-of-stock labels")
	}
}
