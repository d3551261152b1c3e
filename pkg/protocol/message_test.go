package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    Kind
		wantErr bool
	}{
		{"patch batch", `{"JsonPatch":[{"op":"add","path":"/entries/-","value":1}]}`, KindPatch, false},
		{"empty patch batch", `{"JsonPatch":[]}`, KindPatch, false},
		{"finished", `{"finished":true}`, KindFinished, false},
		{"finished false", `{"finished":false}`, 0, true},
		{"refresh required", `{"refresh_required":{"reason":"buffer overflow"}}`, KindRefreshRequired, false},
		{"unknown tag", `{"somethingElse":1}`, 0, true},
		{"empty object", `{}`, 0, true},
		{"not json", `nope`, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.input))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, msg.Kind)
		})
	}

	t.Run("patch operations preserve order", func(t *testing.T) {
		msg, err := Decode([]byte(`{"JsonPatch":[{"op":"add","path":"/a","value":1},{"op":"remove","path":"/a"}]}`))
		require.NoError(t, err)
		require.Len(t, msg.Patch, 2)
		assert.Contains(t, string(msg.Patch[0]), "add")
		assert.Contains(t, string(msg.Patch[1]), "remove")
	})

	t.Run("refresh reason is carried", func(t *testing.T) {
		msg, err := Decode([]byte(`{"refresh_required":{"reason":"broadcast buffer overflowed"}}`))
		require.NoError(t, err)
		assert.Equal(t, "broadcast buffer overflowed", msg.Refresh.Reason)
	})

	t.Run("finished wins over other tags", func(t *testing.T) {
		msg, err := Decode([]byte(`{"finished":true,"JsonPatch":[]}`))
		require.NoError(t, err)
		assert.Equal(t, KindFinished, msg.Kind)
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "patch", KindPatch.String())
	assert.Equal(t, "finished", KindFinished.String())
	assert.Equal(t, "refresh_required", KindRefreshRequired.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
