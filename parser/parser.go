package parser

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/beevik/etree"
	"github.com/goccy/go-json"
	"github.com/icza/dyno"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v2"
)

// The file parsing options that are available for a configuration file.
const (
	File       Parser = "file"
	Yaml       Parser = "yaml"
	Properties Parser = "properties"
	Ini        Parser = "ini"
	Json       Parser = "json"
	Xml        Parser = "xml"
)

var xmlValueMatchRegex = regexp.MustCompile(`^\[([\w]+)='(.*)'\]$`)

// Parser names the format of a configuration file.
type Parser string

func (p Parser) String() string {
	return string(p)
}

// ConfigurationFile is a file inside a world directory that gets some of its
// values replaced before the world starts.
type ConfigurationFile struct {
	FileName string
	Parser   Parser
	Replace  []Replacement
}

// Replacement sets the value at Match. When IfValue is set the replacement
// only happens if the current value equals it. Value may contain
// "{{path.to.value}}" placeholders resolved against the variables passed to
// Parse.
type Replacement struct {
	Match   string
	IfValue string
	Value   string
}

// Parse applies every replacement to the file at path, creating the file if
// it does not exist yet.
func (f *ConfigurationFile) Parse(path string, vars Variables) error {
	log.WithField("path", path).WithField("parser", f.Parser.String()).Debug("parsing configuration file")

	var err error
	switch f.Parser {
	case Properties:
		err = f.parsePropertiesFile(path, vars)
	case File:
		err = f.parseTextFile(path, vars)
	case Yaml, "yml":
		err = f.parseYamlFile(path, vars)
	case Json:
		err = f.parseJsonFile(path, vars)
	case Ini:
		err = f.parseIniFile(path, vars)
	case Xml:
		err = f.parseXmlFile(path, vars)
	default:
		return errors.Errorf("parser: unknown parser %q for %s", f.Parser, f.FileName)
	}
	return errors.WithStackIf(err)
}

func (f *ConfigurationFile) parsePropertiesFile(path string, vars Variables) error {
	p, err := loadProperties(path)
	if err != nil {
		return err
	}
	for _, r := range f.Replace {
		v, ok := p.Get(r.Match)
		if r.IfValue != "" && (!ok || v != r.IfValue) {
			continue
		}
		value, _ := vars.Resolve(r.Value)
		if _, _, err := p.Set(r.Match, value); err != nil {
			return err
		}
	}
	return writeProperties(path, p)
}

// Lines that start with a replacement's match have that prefix swapped for
// the value.
func (f *ConfigurationFile) parseTextFile(path string, vars Variables) error {
	b, err := readFileBytes(path)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := scanner.Text()
		for _, r := range f.Replace {
			if strings.HasPrefix(line, r.Match) {
				value, _ := vars.Resolve(r.Value)
				line = value + strings.TrimPrefix(line, r.Match)
			}
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, out.Bytes(), 0o644)
}

func (f *ConfigurationFile) parseYamlFile(path string, vars Variables) error {
	b, err := readFileBytes(path)
	if err != nil {
		return err
	}
	i := make(map[interface{}]interface{})
	if err := yaml.Unmarshal(b, &i); err != nil {
		return err
	}
	// gabs only understands string keyed maps.
	jb, err := json.Marshal(dyno.ConvertMapI2MapS(i))
	if err != nil {
		return err
	}
	data, err := f.iterateOverJson(jb, vars)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(data.Data())
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func (f *ConfigurationFile) parseJsonFile(path string, vars Variables) error {
	b, err := readFileBytes(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		b = []byte("{}")
	}
	data, err := f.iterateOverJson(b, vars)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(data.StringIndent("", "    ")), 0o644)
}

// A match of "foo.bar" addresses key "bar" in section "[foo]"; a match
// without a dot addresses the default section.
func (f *ConfigurationFile) parseIniFile(path string, vars Variables) error {
	if err := touch(path); err != nil {
		return err
	}
	cfg, err := ini.Load(path)
	if err != nil {
		return err
	}
	for _, r := range f.Replace {
		section, key := "", r.Match
		if parts := strings.SplitN(r.Match, ".", 2); len(parts) == 2 {
			section, key = parts[0], parts[1]
		}
		s := cfg.Section(section)
		if r.IfValue != "" && (!s.HasKey(key) || s.Key(key).String() != r.IfValue) {
			continue
		}
		value, _ := vars.Resolve(r.Value)
		if s.HasKey(key) {
			s.Key(key).SetValue(value)
		} else if _, err := s.NewKey(key, value); err != nil {
			return err
		}
	}
	return cfg.SaveTo(path)
}

// Matches are dot separated element paths starting at the root element. A
// value of the form "[attr='value']" sets an attribute instead of the text.
func (f *ConfigurationFile) parseXmlFile(path string, vars Variables) error {
	doc := etree.NewDocument()
	b, err := readFileBytes(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) > 0 {
		if err := doc.ReadFromBytes(b); err != nil {
			return err
		}
	} else {
		doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	}
	for _, r := range f.Replace {
		parts := strings.Split(r.Match, ".")
		if doc.Root() == nil {
			doc.SetRoot(doc.CreateElement(parts[0]))
		}
		if !strings.Contains(r.Match, "*") {
			element := doc.Root()
			for _, tag := range parts[1:] {
				if e := element.FindElement(tag); e != nil {
					element = e
				} else {
					element = element.CreateElement(tag)
				}
			}
		}
		value, _ := vars.Resolve(r.Value)
		for _, element := range doc.FindElements("./" + strings.Join(parts, "/")) {
			if r.IfValue != "" && element.Text() != r.IfValue {
				continue
			}
			if m := xmlValueMatchRegex.FindStringSubmatch(value); m != nil {
				element.CreateAttr(m[1], m[2])
			} else {
				element.SetText(value)
			}
		}
	}
	doc.Indent(2)
	return doc.WriteToFile(path)
}
