package remote

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/BartekS5/cmigrate/internal/source"
)

// extract reads fields from el into rec. Only Rich fields can fail.
func extract(el *etree.Element, fields []Field, rec source.Record) error {
	for _, f := range fields {
		switch f.Kind {
		case Text:
			if e := el.FindElement(f.Path); e != nil {
				rec[f.Name] = strings.TrimSpace(e.Text())
			}
		case Attr:
			e := el
			if f.Path != "" {
				e = el.FindElement(f.Path)
			}
			if e != nil {
				if a := e.SelectAttr(f.Attr); a != nil {
					rec[f.Name] = a.Value
				}
			}
		case List:
			var values []string
			for _, e := range el.FindElements(f.Path) {
				values = append(values, strings.TrimSpace(e.Text()))
			}
			rec[f.Name] = values
		case Records:
			var nested []source.Record
			for _, e := range el.FindElements(f.Path) {
				nested = append(nested, elementRecord(e))
			}
			rec[f.Name] = nested
		case Rich:
			e := el.FindElement(f.Path)
			if e == nil {
				continue
			}
			nested, err := parseFragment(e.Text())
			if err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
			rec[f.Name] = nested
		}
	}
	return nil
}

// parseFragment parses text holding zero or more sibling XML elements.
func parseFragment(text string) (source.Record, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString("<fragment>" + text + "</fragment>"); err != nil {
		return nil, fmt.Errorf("parse rich content: %w", err)
	}
	return elementRecord(doc.Root()), nil
}

// elementRecord maps attributes to "@name" and child elements to their text,
// or to a nested record when they have children of their own. Repeated
// children collect into a slice.
func elementRecord(el *etree.Element) source.Record {
	rec := source.Record{}
	for _, a := range el.Attr {
		rec["@"+a.Key] = a.Value
	}
	for _, child := range el.ChildElements() {
		var v interface{}
		if len(child.ChildElements()) > 0 {
			v = elementRecord(child)
		} else {
			v = strings.TrimSpace(child.Text())
		}
		switch prev := rec[child.Tag].(type) {
		case nil:
			rec[child.Tag] = v
		case []interface{}:
			rec[child.Tag] = append(prev, v)
		default:
			rec[child.Tag] = []interface{}{prev, v}
		}
	}
	if len(rec) == 0 {
		if text := strings.TrimSpace(el.Text()); text != "" {
			rec["#text"] = text
		}
	}
	return rec
}
