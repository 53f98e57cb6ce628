package migrations

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fstestDirFromFiles(files map[string]string) fs.FS {
	m := make(fstest.MapFS, len(files))
	for name, content := range files {
		m[name] = &fstest.MapFile{Data: []byte(content)}
	}

	return m
}

func TestSetValidate(t *testing.T) {
	set := NewSet(nil)

	err := set.Validate()
	require.NoError(t, err)
}

func TestSetList(t *testing.T) {
	set := NewSet(nil)

	files, err := set.List()
	require.NoError(t, err)
	assert.Contains(t, files, "001_core_schema.up.sql")
	assert.Contains(t, files, "001_core_schema.down.sql")
	assert.Contains(t, files, "002_api_key_audit_log.up.sql")
	assert.Contains(t, files, "002_api_key_audit_log.down.sql")
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		wantErr   bool
		direction string
		seq       int
	}{
		{name: "valid up migration", filename: "001_core_schema.up.sql", direction: "up", seq: 1},
		{name: "valid down migration", filename: "002_api_key_audit_log.down.sql", direction: "down", seq: 2},
		{name: "missing sequence", filename: "core_schema.up.sql", wantErr: true},
		{name: "wrong extension", filename: "001_core_schema.up.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseFilename(tt.filename)

			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.direction, info.Direction)
			assert.Equal(t, tt.seq, info.Sequence)
		})
	}
}

func TestSetValidateRejectsGapInSequence(t *testing.T) {
	set := &Set{fs: fstestDirFromFiles(map[string]string{
		"001_a.up.sql":   "select 1;",
		"001_a.down.sql": "select 1;",
		"003_b.up.sql":   "select 1;",
		"003_b.down.sql": "select 1;",
	}), checksums: make(map[string]string)}

	err := set.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gap in migration sequence")
}

func TestSetValidateRejectsOrphanedMigration(t *testing.T) {
	set := &Set{fs: fstestDirFromFiles(map[string]string{
		"001_a.up.sql": "select 1;",
	}), checksums: make(map[string]string)}

	err := set.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphaned up migration")
}
