package xmlnode

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Parse reads an XML document and returns its root element. Comments,
// processing instructions and directives are discarded; character data is
// kept verbatim, including CDATA sections.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var root *Node
	var cur *Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if cur == nil {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements: <%s> after <%s>", el.Name, root.Name)
				}
				root = el
			} else {
				cur.AppendChild(el)
			}
			cur = el
		case xml.EndElement:
			if cur == nil {
				return nil, fmt.Errorf("unexpected </%s>", t.Name.Local)
			}
			cur = cur.parent
		case xml.CharData:
			if cur != nil {
				cur.AppendChild(&Node{Text: string(t)})
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	if cur != nil {
		return nil, fmt.Errorf("unclosed element <%s>", cur.Name)
	}
	return root, nil
}
