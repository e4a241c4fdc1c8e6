package parser

import (
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/Jeffail/gabs/v2"
	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/iancoleman/strcase"
	"github.com/magiconair/properties"
)

var placeholderRegex = regexp.MustCompile(`{{\s*([\w.-]+)\s*}}`)

// Variables is a JSON document that "{{a.b}}" placeholders are looked up in.
type Variables []byte

// NewVariables marshals the value into a lookup document.
func NewVariables(v interface{}) (Variables, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "parser: could not build variables")
	}
	return b, nil
}

// Resolve replaces every placeholder in the value. Path segments may be
// written in any case style, "{{server.allocatedMemory}}" and
// "{{server.allocated_memory}}" are the same lookup. Unknown placeholders are
// left untouched so that a broken replacement is visible in the file.
//
// The returned type is the JSON type of the looked up value when the whole
// input is a single placeholder, and the type the literal looks like
// otherwise.
func (v Variables) Resolve(value string) (string, jsonparser.ValueType) {
	if m := placeholderRegex.FindStringSubmatch(value); m != nil && m[0] == value {
		if raw, dt, ok := v.lookup(m[1]); ok {
			return raw, dt
		}
		return value, jsonparser.String
	}
	out := placeholderRegex.ReplaceAllStringFunc(value, func(s string) string {
		path := placeholderRegex.FindStringSubmatch(s)[1]
		if raw, _, ok := v.lookup(path); ok {
			return raw
		}
		return s
	})
	return out, literalType(out)
}

func (v Variables) lookup(path string) (string, jsonparser.ValueType, bool) {
	if len(v) == 0 {
		return "", jsonparser.NotExist, false
	}
	var keys []string
	for _, k := range strings.Split(path, ".") {
		keys = append(keys, strcase.ToSnake(k))
	}
	raw, dt, _, err := jsonparser.Get(v, keys...)
	if err != nil {
		return "", jsonparser.NotExist, false
	}
	if dt == jsonparser.String {
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return "", dt, false
		}
		return s, dt, true
	}
	return string(raw), dt, true
}

func literalType(s string) jsonparser.ValueType {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return jsonparser.Number
	}
	if _, err := strconv.ParseBool(s); err == nil {
		return jsonparser.Boolean
	}
	return jsonparser.String
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// readFileBytes returns the contents of the file, creating it when missing.
func readFileBytes(path string) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func setPathway(c *gabs.Container, path string, value string, dt jsonparser.ValueType) error {
	var err error
	switch dt {
	case jsonparser.Number:
		if i, perr := strconv.ParseInt(value, 10, 64); perr == nil {
			_, err = c.SetP(i, path)
		} else {
			f, _ := strconv.ParseFloat(value, 64)
			_, err = c.SetP(f, path)
		}
	case jsonparser.Boolean:
		b, _ := strconv.ParseBool(value)
		_, err = c.SetP(b, path)
	default:
		_, err = c.SetP(value, path)
	}
	return err
}

// iterateOverJson applies the replacements to arbitrary JSON. A match of the
// form "servers.*.port" sets "port" on every child of "servers".
func (f *ConfigurationFile) iterateOverJson(data []byte, vars Variables) (*gabs.Container, error) {
	parsed, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	for _, r := range f.Replace {
		value, dt := vars.Resolve(r.Value)
		if strings.Contains(r.Match, ".*") {
			parts := strings.SplitN(r.Match, ".*", 2)
			for _, child := range parsed.Path(strings.Trim(parts[0], ".")).Children() {
				if err := setPathway(child, strings.Trim(parts[1], "."), value, dt); err != nil {
					return nil, err
				}
			}
			continue
		}
		if r.IfValue != "" {
			if cur, ok := parsed.Path(r.Match).Data().(string); !ok || cur != r.IfValue {
				continue
			}
		}
		if err := setPathway(parsed, r.Match, value, dt); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

func writeProperties(path string, p *properties.Properties) error {
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer w.Close()
	_, err = p.WriteComment(w, "#", properties.UTF8)
	return err
}

// loadProperties reads a properties file verbatim, without expanding
// "${...}" references in values.
func loadProperties(path string) (*properties.Properties, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true, IgnoreMissing: true}
	return l.LoadFile(path)
}
