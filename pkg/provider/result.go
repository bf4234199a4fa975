package provider

import (
	"github.com/tidwall/gjson"
)

// Shape records which of the two accepted response forms was received.
type Shape int

const (
	ShapeList   Shape = iota + 1 // [{"generated_text": ...}, ...]
	ShapeObject                  // {"generated_text": ...}
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeObject:
		return "object"
	default:
		return "unknown"
	}
}

// Result is a successful response reduced to its generated text.
type Result struct {
	Shape Shape
	Text  string
	// Items is the number of results in a list response; 1 for objects.
	Items int
}

// ParseResult decodes a response body once, accepting either a list of
// result objects or a single result object. The first generated_text string
// found wins. Any other body is a KindMalformed error.
func ParseResult(body []byte) (Result, error) {
	if !gjson.ValidBytes(body) {
		return Result{}, &Error{Kind: KindMalformed, Message: "response is not valid JSON"}
	}
	root := gjson.ParseBytes(body)

	switch {
	case root.IsArray():
		items := root.Array()
		for _, item := range items {
			if text := item.Get("generated_text"); text.Type == gjson.String {
				return Result{Shape: ShapeList, Text: text.String(), Items: len(items)}, nil
			}
		}
		return Result{}, &Error{Kind: KindMalformed, Message: "no generated_text in response list"}
	case root.IsObject():
		if text := root.Get("generated_text"); text.Type == gjson.String {
			return Result{Shape: ShapeObject, Text: text.String(), Items: 1}, nil
		}
		if msg := root.Get("error"); msg.Exists() {
			return Result{}, &Error{Kind: KindMalformed, Message: "provider error in success body: " + msg.String()}
		}
		return Result{}, &Error{Kind: KindMalformed, Message: "no generated_text in response object"}
	default:
		return Result{}, &Error{Kind: KindMalformed, Message: "unexpected response type " + root.Type.String()}
	}
}
