package db

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandParser(t *testing.T) {
	e, err := NewEngine(memoryOptions())
	require.NoError(t, err)
	defer e.Close()

	var out bytes.Buffer
	p := NewCommandParser(e, &out)

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"help", "create index <name>", false},
		{"create index users;", "Index created.", false},
		{"CREATE INDEX users", "", true},
		{"show indexes", "- users", false},
		{"insert users 1 10", "OK, 1 pair inserted.", false},
		{"insert users -5 20", "OK, 1 pair inserted.", false},
		{"insert users 1 10", "", true},
		{"get users 1", "[1] 10", false},
		{"get users -5", "[-5] 20", false},
		{"get users 2", "Empty set.", false},
		{"scan users", "(2 rows)", false},
		{"depth users", "global depth: 0 (1 directory slots)", false},
		{"verify users", "Directory OK.", false},
		{"remove users 1 10", "OK, 1 pair removed.", false},
		{"remove users 1 10", "", true},
		{"insert users one 1", "", true},
		{"get nowhere 1", "", true},
		{"flush", "Flushed.", false},
		{"stats", "buffer pool:", false},
		{"drop index users", "Index dropped.", false},
		{"select * from users", "", true},
		{"", "", false},
	}

	for _, tt := range tests {
		out.Reset()
		err := p.ParseAndExecute(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Contains(t, out.String(), tt.want, tt.input)
	}
}
