package pathguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRejections(t *testing.T) {
	tests := []struct {
		name string
		rel  string
	}{
		{name: "empty", rel: ""},
		{name: "leading slash", rel: "/etc/passwd"},
		{name: "parent segment", rel: "../evil"},
		{name: "embedded parent", rel: "lib/../../evil"},
		{name: "dot segment", rel: "./main.py"},
		{name: "embedded dot", rel: "lib/./x.py"},
		{name: "empty segment", rel: "lib//x.py"},
		{name: "trailing slash", rel: "lib/"},
		{name: "backslash", rel: "lib\\x.py"},
		{name: "drive colon", rel: "c:evil"},
		{name: "only parent", rel: ".."},
		{name: "only dot", rel: "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.rel)
			assert.Error(t, err, "expected rejection for %q", tt.rel)
		})
	}
}

func TestNormalizeAccepts(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{rel: "main.py", want: "main.py"},
		{rel: "lib/app.py", want: "lib/app.py"},
		{rel: "deep/nested/dir/file.bin", want: "deep/nested/dir/file.bin"},
		{rel: ".hidden", want: ".hidden"},
		{rel: "..double", want: "..double"},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.rel)
		require.NoError(t, err, tt.rel)
		assert.Equal(t, tt.want, got)
	}
}

func TestPermitted(t *testing.T) {
	tests := []struct {
		name   string
		allow  []string
		ignore []string
		rel    string
		want   bool
	}{
		{name: "no lists permits all", rel: "anything.py", want: true},
		{name: "allow exact", allow: []string{"main.py"}, rel: "main.py", want: true},
		{name: "allow prefix", allow: []string{"lib"}, rel: "lib/app.py", want: true},
		{name: "allow prefix with slash", allow: []string{"lib/"}, rel: "lib/app.py", want: true},
		{name: "outside allow", allow: []string{"lib"}, rel: "other/app.py", want: false},
		{name: "prefix is not substring", allow: []string{"lib"}, rel: "library/app.py", want: false},
		{name: "ignore exact", ignore: []string{"secrets.json"}, rel: "secrets.json", want: false},
		{name: "ignore prefix", ignore: []string{"tests"}, rel: "tests/test_app.py", want: false},
		{name: "ignore wins over allow", allow: []string{"lib"}, ignore: []string{"lib/private"}, rel: "lib/private/key.pem", want: false},
		{name: "allowed not ignored", allow: []string{"lib"}, ignore: []string{"lib/private"}, rel: "lib/app.py", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.allow, tt.ignore)
			assert.Equal(t, tt.want, g.Permitted(tt.rel))
		})
	}
}

func TestCheck(t *testing.T) {
	g := New([]string{"lib"}, nil)

	norm, err := g.Check("lib/app.py")
	require.NoError(t, err)
	assert.Equal(t, "lib/app.py", norm)

	_, err = g.Check("../evil")
	assert.Error(t, err)

	_, err = g.Check("other/app.py")
	assert.Error(t, err)
}

func TestWithinRoot(t *testing.T) {
	assert.NoError(t, WithinRoot(".ota_stage", "lib/app.py"))
	assert.Error(t, WithinRoot(".ota_stage", "../outside"))
	assert.Error(t, WithinRoot(".ota_stage", "../../etc/passwd"))
}
