package config

import (
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(`
[program]
target = "0.3.1"
system_id = "beast-vm"
mem_pages = 4

[compilation]
entry_point = "app.main"
include = ["src", "vendor/src"]
lib = ["lib"]
dialect = "flags"

[signals]
write = 1
exit = 60
`))
	require.NoError(t, err)

	want := &Config{
		Program: Program{Target: "0.3.1", SystemID: "beast-vm", MemPages: 4},
		Compilation: Compilation{
			EntryPoint: "app.main",
			Include:    []string{"src", "vendor/src"},
			Lib:        []string{"lib"},
			Dialect:    "flags",
		},
		Signals: map[string]uint16{"write": 1, "exit": 60},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"exit", "write"}, cfg.SignalNames())
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("[program]\ntarget = \"v1.0.0\"\nsystem_id = \"x\"\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Compilation, cfg.Compilation)
	assert.Equal(t, "main", cfg.Compilation.EntryPoint)
	assert.Equal(t, []string{"src"}, cfg.Compilation.Include)
	assert.Equal(t, []string{"lib"}, cfg.Compilation.Lib)
	assert.Equal(t, "comparison", cfg.Compilation.Dialect)
	assert.Empty(t, cfg.Signals)
}

func TestParseRejectsInvalid(t *testing.T) {
	const program = "[program]\ntarget = \"1.0.0\"\nsystem_id = \"x\"\n"

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing program",
			doc:  "[compilation]\nentry_point = \"main\"\n",
			want: "program",
		},
		{
			name: "missing system id",
			doc:  "[program]\ntarget = \"1.0.0\"\n",
			want: "system_id",
		},
		{
			name: "bad semver",
			doc:  "[program]\ntarget = \"one-point-oh\"\nsystem_id = \"x\"\n",
			want: "/program/target",
		},
		{
			name: "too many pages",
			doc:  program + "mem_pages = 300\n",
			want: "/program/mem_pages",
		},
		{
			name: "unknown dialect",
			doc:  program + "[compilation]\ndialect = \"stack\"\n",
			want: "/compilation/dialect",
		},
		{
			name: "signal out of range",
			doc:  program + "[signals]\nwrite = 70000\n",
			want: "/signals/write",
		},
		{
			name: "unknown field",
			doc:  program + "cpu = \"z80\"\n",
			want: "cpu",
		},
		{
			name: "bad entry point",
			doc:  program + "[compilation]\nentry_point = \"app..main\"\n",
			want: "/compilation/entry_point",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRejectsMalformedTOML(t *testing.T) {
	_, err := Parse([]byte("[program\ntarget = 1"))
	assert.ErrorContains(t, err, "decode toml")

	_, err = Parse(nil)
	assert.ErrorContains(t, err, "empty configuration")
}

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
program:
  target: 0.3.1
  system_id: beast-vm
compilation:
  include: [src, vendor/src]
signals:
  write: 1
`))
	require.NoError(t, err)
	assert.Equal(t, "beast-vm", cfg.Program.SystemID)
	assert.Equal(t, []string{"src", "vendor/src"}, cfg.Compilation.Include)
	assert.Equal(t, "main", cfg.Compilation.EntryPoint)
	assert.Equal(t, map[string]uint16{"write": 1}, cfg.Signals)

	_, err = ParseYAML([]byte("program:\n  target: 1.0.0\n  system_id: x\n  cpu: z80\n"))
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = ParseYAML([]byte("program: [unterminated"))
	assert.ErrorContains(t, err, "decode yaml")

	_, err = ParseYAML(nil)
	assert.ErrorContains(t, err, "empty configuration")
}

func TestLoad(t *testing.T) {
	cfg, err := Load(fstest.MapFS{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(fstest.MapFS{
		FileName: {Data: []byte("[program]\ntarget = \"2.1.0\"\nsystem_id = \"demo\"\n[signals]\nhalt = 0\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Program.SystemID)
	assert.Equal(t, map[string]uint16{"halt": 0}, cfg.Signals)

	_, err = Load(fstest.MapFS{FileName: {Data: []byte("program = 3\n")}})
	assert.ErrorContains(t, err, FileName)
}

func TestLoadYAMLFallback(t *testing.T) {
	yamlDoc := []byte("program:\n  target: 1.0.0\n  system_id: from-yaml\n")
	tomlDoc := []byte("[program]\ntarget = \"1.0.0\"\nsystem_id = \"from-toml\"\n")

	cfg, err := Load(fstest.MapFS{YAMLFileName: {Data: yamlDoc}})
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Program.SystemID)

	_, err = Load(fstest.MapFS{YAMLFileName: {Data: []byte("program: 3\n")}})
	assert.ErrorContains(t, err, YAMLFileName)

	_, err = Load(fstest.MapFS{FileName: {Data: tomlDoc}, YAMLFileName: {Data: yamlDoc}})
	assert.ErrorContains(t, err, "both")
}

func TestIsSemver(t *testing.T) {
	for _, v := range []string{"1.0.0", "v1.2.3", "0.1.0-rc.1", "v2"} {
		assert.True(t, isSemver(v), v)
	}
	for _, v := range []string{"", "one", "1.0.0.0", "v1.2.3.4"} {
		assert.False(t, isSemver(v), v)
	}
	assert.True(t, isSemver(42), "non-strings are left to type validation")
}
