package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/coveralls/internal/coverage"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{
			name: "plain utf-8",
			data: []byte("def hello():\n    return 1\n"),
			want: "def hello():\n    return 1\n",
		},
		{
			name: "bom stripped",
			data: []byte("\xef\xbb\xbfx = 1\n"),
			want: "x = 1\n",
		},
		{
			name: "declared latin encoding",
			data: []byte("# coding: iso-8859-15\n\ndef hello():\n    print ('I like P\xf3lya distribution.')\n"),
			want: "# coding: iso-8859-15\n\ndef hello():\n    print ('I like Pólya distribution.')\n",
		},
		{
			name: "emacs style declaration on second line",
			data: []byte("#!/usr/bin/env python\n# -*- coding: latin1 -*-\nx = '\xe9'\n"),
			want: "#!/usr/bin/env python\n# -*- coding: latin1 -*-\nx = 'é'\n",
		},
		{
			name: "declaration on third line ignored",
			data: []byte("\n\n# coding: latin1\nx = '\xe9'\n"),
			wantErr: true,
		},
		{
			name: "malformed declaration falls back to utf-8",
			data: []byte("# -*- cоding: utf-8 -*-\n\ndef hello():\n    return 1"),
			want: "# -*- cоding: utf-8 -*-\n\ndef hello():\n    return 1",
		},
		{
			name: "declared utf-8 with sig",
			data: []byte("# coding: utf-8-sig\nx = 1\n"),
			want: "# coding: utf-8-sig\nx = 1\n",
		},
		{
			name:    "invalid utf-8",
			data:    []byte("x = '\xff\xfe'\n"),
			wantErr: true,
		},
		{
			name:    "unknown encoding",
			data:    []byte("# coding: klingon\nx = 1\n"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, CountLines(""))
	assert.Equal(t, 1, CountLines("x"))
	assert.Equal(t, 1, CountLines("x\n"))
	assert.Equal(t, 2, CountLines("x\n\n"))
	assert.Equal(t, 4, CountLines("a\r\nb\r\nc\r\nd"))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.py")
	require.NoError(t, os.WriteFile(good, []byte("print('hi')\nx = 1\n"), 0644))
	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte("<h1>This isn't python!</h1>\n"), 0644))
	binary := filepath.Join(dir, "bin.txt")
	require.NoError(t, os.WriteFile(binary, []byte{0xff, 0xfe, 0x00}, 0644))

	loader := &Loader{Syntax: NewSyntaxChecker()}

	t.Run("ok", func(t *testing.T) {
		text, lines, err := loader.Load(good)
		require.NoError(t, err)
		assert.Equal(t, "print('hi')\nx = 1\n", text)
		assert.Equal(t, 2, lines)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := loader.Load(filepath.Join(dir, "gone.py"))
		assert.True(t, errors.Is(err, coverage.ErrNoSource))
	})

	t.Run("directory instead of file", func(t *testing.T) {
		sub := filepath.Join(dir, "pkg.py")
		require.NoError(t, os.Mkdir(sub, 0755))
		_, _, err := loader.Load(sub)
		assert.True(t, errors.Is(err, coverage.ErrNoSource))
	})

	t.Run("not parseable", func(t *testing.T) {
		_, _, err := loader.Load(bad)
		assert.True(t, errors.Is(err, coverage.ErrNotParseable))
	})

	t.Run("not parseable passes without checker", func(t *testing.T) {
		_, _, err := (&Loader{}).Load(bad)
		assert.NoError(t, err)
	})

	t.Run("undecodable", func(t *testing.T) {
		_, _, err := loader.Load(binary)
		assert.True(t, errors.Is(err, coverage.ErrEncoding))
	})
}

func TestSyntaxChecker(t *testing.T) {
	c := NewSyntaxChecker()

	assert.True(t, c.Supports("a/b.py"))
	assert.True(t, c.Supports("a/b.GO"))
	assert.False(t, c.Supports("a/b.rb"))

	assert.NoError(t, c.Check("ok.go", []byte("package main\n\nfunc main() {}\n")))
	assert.Error(t, c.Check("bad.go", []byte("package main\n\nfunc main( {\n")))
	assert.NoError(t, c.Check("ok.js", []byte("const x = 1;\n")))
	assert.NoError(t, c.Check("anything.rb", []byte("<<<not checked>>>")))

	err := c.Check("bad.py", []byte("x = 1\ndef (:\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestFilter(t *testing.T) {
	f, err := NewFilter(nil, []string{"**/.tox/**", "*_test.go"})
	require.NoError(t, err)

	assert.True(t, f.Match("pkg/mod.py"))
	assert.False(t, f.Match(".tox/py39/lib/site.py"))
	assert.False(t, f.Match("pkg/a_test.go"))
	assert.False(t, f.Match(`pkg\a_test.go`))

	inc, err := NewFilter([]string{"src/**"}, nil)
	require.NoError(t, err)
	assert.True(t, inc.Match("src/a/b.py"))
	assert.False(t, inc.Match("tests/b.py"))

	var none *Filter
	assert.True(t, none.Match("anything"))

	_, err = NewFilter([]string{"[unclosed"}, nil)
	assert.Error(t, err)
}
