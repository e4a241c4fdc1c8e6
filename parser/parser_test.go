package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/buger/jsonparser"
	. "github.com/franela/goblin"
)

func TestParser(t *testing.T) {
	g := Goblin(t)

	vars, err := NewVariables(map[string]interface{}{
		"server": map[string]interface{}{
			"port":             25566,
			"allocated_memory": 2048,
			"hostname":         "survival",
			"enabled":          true,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var dir string
	g.Describe("Parser", func() {
		g.BeforeEach(func() {
			dir = t.TempDir()
		})

		write := func(name, content string) string {
			p := filepath.Join(dir, name)
			if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
				panic(err)
			}
			return p
		}
		read := func(p string) string {
			b, err := os.ReadFile(p)
			if err != nil {
				panic(err)
			}
			return string(b)
		}

		g.Describe("Variables#Resolve", func() {
			g.It("keeps the type of a lone placeholder", func() {
				v, dt := vars.Resolve("{{server.port}}")
				g.Assert(v).Equal("25566")
				g.Assert(dt).Equal(jsonparser.Number)

				v, dt = vars.Resolve("{{ server.hostname }}")
				g.Assert(v).Equal("survival")
				g.Assert(dt).Equal(jsonparser.String)
			})

			g.It("substitutes placeholders inside text", func() {
				v, dt := vars.Resolve("-Xmx{{server.allocatedMemory}}M")
				g.Assert(v).Equal("-Xmx2048M")
				g.Assert(dt).Equal(jsonparser.String)
			})

			g.It("leaves unknown placeholders untouched", func() {
				v, _ := vars.Resolve("{{server.missing}}")
				g.Assert(v).Equal("{{server.missing}}")
			})
		})

		g.Describe("Properties", func() {
			g.It("overwrites only the matched keys", func() {
				p := write("server.properties", "#Minecraft server properties\nmotd=Hello\nserver-port=25565\n")
				f := ConfigurationFile{FileName: "server.properties", Parser: Properties, Replace: []Replacement{
					{Match: "server-port", Value: "{{server.port}}"},
					{Match: "query.port", Value: "{{server.port}}"},
				}}

				g.Assert(f.Parse(p, vars)).IsNil()

				m, err := ReadProperties(p)
				g.Assert(err).IsNil()
				g.Assert(m["motd"]).Equal("Hello")
				g.Assert(m["server-port"]).Equal("25566")
				g.Assert(m["query.port"]).Equal("25566")
				g.Assert(strings.Contains(read(p), "Minecraft server properties")).IsTrue()
			})

			g.It("respects if_value", func() {
				p := write("server.properties", "online-mode=true\n")
				f := ConfigurationFile{Parser: Properties, Replace: []Replacement{
					{Match: "online-mode", IfValue: "false", Value: "true"},
					{Match: "white-list", IfValue: "true", Value: "false"},
				}}

				g.Assert(f.Parse(p, vars)).IsNil()

				m, _ := ReadProperties(p)
				g.Assert(m).Equal(map[string]string{"online-mode": "true"})
			})

			g.It("creates a missing file", func() {
				p := filepath.Join(dir, "new.properties")
				f := ConfigurationFile{Parser: Properties, Replace: []Replacement{{Match: "server-port", Value: "{{server.port}}"}}}

				g.Assert(f.Parse(p, vars)).IsNil()

				m, _ := ReadProperties(p)
				g.Assert(m["server-port"]).Equal("25566")
			})

			g.It("writes and merges maps", func() {
				p := write("server.properties", "motd=Hello\n")
				g.Assert(WriteProperties(p, map[string]string{"difficulty": "hard"})).IsNil()

				m, _ := ReadProperties(p)
				g.Assert(m).Equal(map[string]string{"motd": "Hello", "difficulty": "hard"})
			})

			g.It("reads a missing file as empty", func() {
				m, err := ReadProperties(filepath.Join(dir, "missing.properties"))
				g.Assert(err).IsNil()
				g.Assert(len(m)).Equal(0)
			})
		})

		g.Describe("Yaml", func() {
			g.It("sets nested keys with their types", func() {
				p := write("config.yml", "settings:\n  bungeecord: false\nlisteners:\n  - host: 0.0.0.0\n    port: 1\n")
				f := ConfigurationFile{Parser: Yaml, Replace: []Replacement{
					{Match: "settings.bungeecord", Value: "true"},
					{Match: "listeners.*.port", Value: "{{server.port}}"},
				}}

				g.Assert(f.Parse(p, vars)).IsNil()

				out := read(p)
				g.Assert(strings.Contains(out, "bungeecord: true")).IsTrue()
				g.Assert(strings.Contains(out, "port: 25566")).IsTrue()
			})
		})

		g.Describe("Json", func() {
			g.It("sets values in an empty file", func() {
				p := write("config.json", "")
				f := ConfigurationFile{Parser: Json, Replace: []Replacement{
					{Match: "network.port", Value: "{{server.port}}"},
					{Match: "network.name", Value: "{{server.hostname}}"},
				}}

				g.Assert(f.Parse(p, vars)).IsNil()

				b := []byte(read(p))
				port, _ := jsonparser.GetInt(b, "network", "port")
				name, _ := jsonparser.GetString(b, "network", "name")
				g.Assert(port).Equal(int64(25566))
				g.Assert(name).Equal("survival")
			})
		})

		g.Describe("Ini", func() {
			g.It("sets keys in sections", func() {
				p := write("config.ini", "[server]\nport = 1\n")
				f := ConfigurationFile{Parser: Ini, Replace: []Replacement{
					{Match: "server.port", Value: "{{server.port}}"},
					{Match: "name", Value: "{{server.hostname}}"},
				}}

				g.Assert(f.Parse(p, vars)).IsNil()

				out := read(p)
				g.Assert(strings.Contains(out, "port = 25566")).IsTrue()
				g.Assert(strings.Contains(out, "name = survival")).IsTrue()
			})
		})

		g.Describe("Xml", func() {
			g.It("creates missing elements and attributes", func() {
				p := write("config.xml", "")
				f := ConfigurationFile{Parser: Xml, Replace: []Replacement{
					{Match: "config.server.port", Value: "{{server.port}}"},
					{Match: "config.server.bind", Value: "[address='127.0.0.1']"},
				}}

				g.Assert(f.Parse(p, vars)).IsNil()

				out := read(p)
				g.Assert(strings.Contains(out, "<port>25566</port>")).IsTrue()
				g.Assert(strings.Contains(out, `address="127.0.0.1"`)).IsTrue()
			})
		})

		g.Describe("File", func() {
			g.It("replaces matching line prefixes", func() {
				p := write("eula.txt", "# accept\neula=false\n")
				f := ConfigurationFile{Parser: File, Replace: []Replacement{{Match: "eula=false", Value: "eula=true"}}}

				g.Assert(f.Parse(p, vars)).IsNil()
				g.Assert(read(p)).Equal("# accept\neula=true\n")
			})
		})

		g.It("rejects unknown parsers", func() {
			f := ConfigurationFile{Parser: "toml"}
			g.Assert(f.Parse(filepath.Join(dir, "x"), vars) != nil).IsTrue()
		})
	})
}
