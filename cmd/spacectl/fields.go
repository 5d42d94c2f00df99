package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"tuplespace/tuple"
)

// parseTuple reads one field per argument. Arguments are JSON literals (1, 2.5, true,
// "text", [1, "nested"]); anything that is not valid JSON is taken as a string.
func parseTuple(args []string) (tuple.Tuple, error) {
	fields := make([]any, len(args))
	for i, arg := range args {
		v, err := parseLiteral(arg)
		if err != nil {
			return tuple.Tuple{}, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = v
	}
	return tuple.Of(fields...)
}

// parseTemplate is parseTuple with formal fields: "?int", "?bool", "?float", "?string"
// and "?tuple" match any value of that kind.
func parseTemplate(args []string) (tuple.Template, error) {
	fields := make([]any, len(args))
	for i, arg := range args {
		if name, ok := strings.CutPrefix(arg, "?"); ok {
			k, err := tuple.ParseKind(name)
			if err != nil {
				return tuple.Template{}, fmt.Errorf("field %d: %w", i, err)
			}
			fields[i] = k
			continue
		}
		v, err := parseLiteral(arg)
		if err != nil {
			return tuple.Template{}, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i] = v
	}
	return tuple.TemplateOf(fields...)
}

func parseLiteral(arg string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil || dec.More() {
		return arg, nil
	}
	return fromJSON(raw)
}

func fromJSON(raw any) (any, error) {
	switch x := raw.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case bool, string:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			v, err := fromJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported literal %v", raw)
	}
}
