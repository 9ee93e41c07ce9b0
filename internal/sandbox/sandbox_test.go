package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var script = []string{"bash", "-c", "ls"}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeFullAccess, false},
		{"full-access", ModeFullAccess, false},
		{"read_only", ModeReadOnly, false},
		{"workspace-write", ModeWorkspaceWrite, false},
		{"jail", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, Policy{Mode: ModeWorkspaceWrite, WritableRoots: []string{"/var/cache/build"}}.Validate())
	assert.ErrorContains(t, Policy{Mode: "jail"}.Validate(), "mode")
	assert.ErrorContains(t, Policy{Mode: ModeWorkspaceWrite, WritableRoots: []string{"build"}}.Validate(), "not absolute")
}

func TestPolicy_Normalized(t *testing.T) {
	assert.Equal(t, ModeReadOnly, Policy{Mode: "read_only"}.Normalized().Mode)
	assert.Equal(t, ModeFullAccess, Policy{}.Normalized().Mode)
	assert.Equal(t, Mode("jail"), Policy{Mode: "jail"}.Normalized().Mode)
}

func TestPolicy_WritableRoots(t *testing.T) {
	p := Policy{Mode: ModeWorkspaceWrite, WritableRoots: []string{"/work/", "/cache"}}
	assert.Equal(t, []string{"/cache", "/work"}, p.writableRoots("/work"))
	assert.Nil(t, Policy{Mode: ModeReadOnly, WritableRoots: []string{"/cache"}}.writableRoots("/work"))
}

func TestBubblewrap_Unrestricted(t *testing.T) {
	argv, err := Bubblewrap{}.Wrap(script, "/work", DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, script, argv)
}

func TestBubblewrap_ReadOnly(t *testing.T) {
	argv, err := Bubblewrap{Path: "/usr/bin/bwrap"}.Wrap(script, "/work", Policy{Mode: ModeReadOnly})
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/bwrap", argv[0])
	assert.Equal(t, []string{"--ro-bind", "/", "/"}, argv[1:4])
	assert.Contains(t, argv, "--unshare-net")
	assert.NotContains(t, argv, "--bind")
	assert.Equal(t, script, argv[len(argv)-3:])
	assert.Equal(t, "--", argv[len(argv)-4])
}

func TestBubblewrap_WorkspaceWrite(t *testing.T) {
	p := Policy{Mode: ModeWorkspaceWrite, WritableRoots: []string{"/cache"}, Network: true}
	argv, err := Bubblewrap{}.Wrap(script, "/work", p)
	require.NoError(t, err)

	var binds []string
	for i, a := range argv {
		if a == "--bind" {
			binds = append(binds, argv[i+1])
		}
	}
	assert.Equal(t, []string{"/cache", "/work"}, binds)
	assert.NotContains(t, argv, "--unshare-net")
	assert.Contains(t, argv, "--chdir")
}

func TestSeatbelt_Profile(t *testing.T) {
	argv, err := Seatbelt{}.Wrap(script, "/Users/me/src", Policy{Mode: ModeWorkspaceWrite})
	require.NoError(t, err)
	require.Len(t, argv, 7)
	assert.Equal(t, sandboxExec, argv[0])

	sbpl := argv[2]
	assert.Contains(t, sbpl, "(deny default)")
	assert.Contains(t, sbpl, `(allow file-write* (subpath "/Users/me/src"))`)
	assert.NotContains(t, sbpl, "(allow network*)")

	argv, err = Seatbelt{}.Wrap(script, "/x", Policy{Mode: ModeReadOnly, Network: true})
	require.NoError(t, err)
	assert.Contains(t, argv[2], "(allow network*)")
	assert.NotContains(t, argv[2], `"/x"`)
}

func TestPassthrough(t *testing.T) {
	argv, err := Passthrough{}.Wrap(script, "", DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, script, argv)

	_, err = Passthrough{}.Wrap(script, "", Policy{Mode: ModeReadOnly})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New())
}
