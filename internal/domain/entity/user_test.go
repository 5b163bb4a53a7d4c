package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_ValueAndScan(t *testing.T) {
	meta := Metadata{MetaKeyWPUserID: int64(42), "theme": "dark"}

	value, err := meta.Value()
	require.NoError(t, err)

	var restored Metadata
	require.NoError(t, restored.Scan(value))

	// jsonb числа возвращаются как float64
	assert.Equal(t, float64(42), restored[MetaKeyWPUserID])
	assert.Equal(t, "dark", restored["theme"])
}

func TestMetadata_NilValue(t *testing.T) {
	var meta Metadata

	value, err := meta.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), value)
}

func TestMetadata_ScanNil(t *testing.T) {
	var meta Metadata
	require.NoError(t, meta.Scan(nil))
	assert.NotNil(t, meta)
	assert.Empty(t, meta)
}

func TestUser_WPUserID(t *testing.T) {
	tests := []struct {
		name   string
		meta   Metadata
		wantID int64
		wantOK bool
	}{
		{name: "int64 value", meta: Metadata{MetaKeyWPUserID: int64(42)}, wantID: 42, wantOK: true},
		{name: "int value", meta: Metadata{MetaKeyWPUserID: 7}, wantID: 7, wantOK: true},
		{name: "float64 from jsonb", meta: Metadata{MetaKeyWPUserID: float64(15)}, wantID: 15, wantOK: true},
		{name: "json.Number", meta: Metadata{MetaKeyWPUserID: json.Number("99")}, wantID: 99, wantOK: true},
		{name: "missing key", meta: Metadata{}, wantOK: false},
		{name: "nil metadata", meta: nil, wantOK: false},
		{name: "wrong type", meta: Metadata{MetaKeyWPUserID: "42"}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &User{Metadata: tt.meta}
			id, ok := user.WPUserID()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestUser_Roles(t *testing.T) {
	// После чтения из jsonb роли приходят как []interface{}
	user := &User{Metadata: Metadata{MetaKeyRoles: []interface{}{"editor", "subscriber"}}}
	assert.Equal(t, []string{"editor", "subscriber"}, user.Roles())

	// До записи роли лежат как []string
	user = &User{Metadata: Metadata{MetaKeyRoles: []string{"admin"}}}
	assert.Equal(t, []string{"admin"}, user.Roles())

	user = &User{}
	assert.Nil(t, user.Roles())
}

func TestUser_BeforeCreate(t *testing.T) {
	user := &User{Email: "user@example.com", Username: "user"}
	require.NoError(t, user.BeforeCreate(nil))

	assert.Len(t, user.ID, 36, "ID должен быть сгенерированным uuid")
	assert.NotNil(t, user.Metadata)

	// Существующий ID не перезаписывается
	fixed := &User{ID: "fixed-id"}
	require.NoError(t, fixed.BeforeCreate(nil))
	assert.Equal(t, "fixed-id", fixed.ID)
}

func TestSession_IsValid(t *testing.T) {
	active := &Session{ExpiresAt: time.Now().Add(time.Hour)}
	assert.True(t, active.IsValid())

	expired := &Session{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.False(t, expired.IsValid())
}
