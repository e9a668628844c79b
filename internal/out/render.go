package out

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/ggonzalez94/edufi-cli/internal/config"
	"github.com/ggonzalez94/edufi-cli/internal/model"
)

// Render writes an envelope as JSON or as plain key=value lines. Plain lines
// flatten nested objects into dotted keys, e.g. meta.cache.status=hit or
// data.estimated_out.amount_decimal=12.5.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}
	jsonMode := settings.OutputMode == "json"

	if settings.ResultsOnly {
		if jsonMode {
			return encodeJSON(w, data)
		}
		return renderPlain(w, data)
	}
	if jsonMode {
		env.Data = data
		return encodeJSON(w, env)
	}

	plain := map[string]any{
		"success": env.Success,
		"data":    data,
		"meta":    env.Meta,
	}
	if len(env.Warnings) > 0 {
		plain["warnings"] = env.Warnings
	}
	if env.Error != nil {
		plain["error"] = env.Error
	}
	return renderPlain(w, plain)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderPlain(w io.Writer, data any) error {
	// Quotes read better as the same one-line summary the assistant replies with.
	switch q := data.(type) {
	case model.SwapQuote:
		_, err := fmt.Fprintln(w, FormatQuote(q))
		return err
	case *model.SwapQuote:
		if q != nil {
			_, err := fmt.Fprintln(w, FormatQuote(*q))
			return err
		}
	}

	v := reflect.ValueOf(data)
	if !v.IsValid() {
		_, err := fmt.Fprintln(w, "null")
		return err
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		line, err := toLine(normalizeValue(data))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
	if v.Len() == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for i := 0; i < v.Len(); i++ {
		line, err := toLine(normalizeValue(v.Index(i).Interface()))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func project(data any, fields []string) any {
	n := normalizeValue(data)
	switch t := n.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return n
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	// Numbers stay json.Number so block heights and wei amounts print exactly.
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}

func toLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}
	flat := map[string]string{}
	if err := flatten("", m, flat); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+flat[k])
	}
	return strings.Join(parts, " "), nil
}

// flatten walks nested objects; lists stay compact JSON so a route or a
// provider list remains one token.
func flatten(prefix string, m map[string]any, dst map[string]string) error {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			if len(t) == 0 {
				continue
			}
			if err := flatten(key, t, dst); err != nil {
				return err
			}
		case []any:
			buf, err := json.Marshal(t)
			if err != nil {
				return err
			}
			dst[key] = string(buf)
		case nil:
			continue
		default:
			dst[key] = fmt.Sprintf("%v", t)
		}
	}
	return nil
}
