package parsers

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// XMLNormalizer parses XML files in one of two shapes:
//
//	<sheet><header><value>h1</value>...</header>
//	       <body><item><value>v1</value>...</item>...</body></sheet>
//
//	<sheet><item><h1>v1</h1><h2>v2</h2></item>...</sheet>
type XMLNormalizer struct {
	config *ParserConfig
}

// xmlNode is a generic element tree
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

func (n xmlNode) children(name string) []xmlNode {
	var out []xmlNode
	for _, child := range n.Nodes {
		if child.XMLName.Local == name {
			out = append(out, child)
		}
	}
	return out
}

func (n xmlNode) values() []string {
	values := n.children("value")
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Content
	}
	return out
}

// NewXMLNormalizer creates a new XML normalizer
func NewXMLNormalizer(config *ParserConfig) *XMLNormalizer {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &XMLNormalizer{
		config: config,
	}
}

// Normalize decodes the document and disperses it by shape
func (p *XMLNormalizer) Normalize(ctx context.Context, raw []byte) (*Content, error) {
	if err := p.config.checkSize(raw); err != nil {
		return nil, err
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	decoder := xml.NewDecoder(bytes.NewReader(text))
	decoder.CharsetReader = charsetReader

	var root xmlNode
	if err := decoder.Decode(&root); err != nil {
		content := unsupported(p.Format())
		content.Errors = append(content.Errors, fmt.Sprintf("failed to decode XML: %v", err))
		return content, nil
	}

	headers := root.children("header")
	bodies := root.children("body")
	items := root.children("item")

	switch {
	case len(headers) > 0 && len(bodies) > 0:
		return p.headerItemsType(ctx, headers, bodies)
	case len(items) > 0:
		return p.itemsOnlyType(ctx, items)
	default:
		return unsupported(p.Format()), nil
	}
}

// headerItemsType reads <header><value/></header><body><item><value/></item></body>
func (p *XMLNormalizer) headerItemsType(ctx context.Context, headers, bodies []xmlNode) (*Content, error) {
	header := headers[len(headers)-1].values()

	var body []interface{}
	for _, b := range bodies {
		items := b.children("item")
		if len(items) == 0 {
			// a body without items is itself one row
			body = append(body, toInterfaces(b.values()))
			continue
		}
		for _, item := range items {
			body = append(body, toInterfaces(item.values()))
		}
	}

	return buildContent(ctx, p.Format(), toInterfaces(header), body)
}

// itemsOnlyType reads <item><col>v</col></item>; the first item names the columns
func (p *XMLNormalizer) itemsOnlyType(ctx context.Context, items []xmlNode) (*Content, error) {
	header := make([]string, len(items[0].Nodes))
	for i, child := range items[0].Nodes {
		header[i] = child.XMLName.Local
	}

	body := make([]interface{}, len(items))
	for i, item := range items {
		row := make([]string, len(item.Nodes))
		for j, child := range item.Nodes {
			row[j] = child.Content
		}
		body[i] = toInterfaces(row)
	}

	return buildContent(ctx, p.Format(), toInterfaces(header), body)
}

// Format returns the format name
func (p *XMLNormalizer) Format() string {
	return "xml"
}

// SupportedFormats returns the file extensions this normalizer supports
func (p *XMLNormalizer) SupportedFormats() []string {
	return []string{".xml"}
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// charsetReader decodes non UTF-8 documents. UTF-16 input has already been
// transcoded by decodeText, so its declaration is ignored.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.HasPrefix(strings.ToLower(label), "utf-16") {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
