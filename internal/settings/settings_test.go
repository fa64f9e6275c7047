package settings

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cdnflow/internal/store"
	"github.com/rendis/cdnflow/internal/streaming"
	"github.com/rendis/cdnflow/internal/validation"
	"github.com/rendis/cdnflow/pkg/schema"
)

func newTestStore(t *testing.T) (*Store, *store.MemoryStore) {
	t.Helper()
	records := store.NewMemoryStore()
	s := NewStore(Config{Records: records})
	t.Cleanup(s.Close)
	return s, records
}

func ptr[T any](v T) *T { return &v }

func TestDefaults(t *testing.T) {
	s, _ := newTestStore(t)
	got := s.Get()
	assert.Equal(t, schema.PortRight, got.OutputPortPosition)
	assert.Equal(t, schema.PortLeft, got.InputPortPosition)
	assert.Equal(t, schema.PortSizeSmall, got.PortSize)
	assert.Equal(t, schema.LabelBottom, got.LabelPosition)
	assert.Equal(t, schema.FontXXXXXS, got.LabelFontSize)
	assert.True(t, got.ShowPortLabels)
	assert.True(t, got.GridVisible)
	assert.False(t, got.SnapToGrid)
}

func TestUpdate(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()

	got, err := s.Update(ctx, schema.SettingsPatch{Theme: ptr(schema.ThemeDark), SnapToGrid: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, schema.ThemeDark, got.Theme)
	assert.True(t, got.SnapToGrid)
	assert.Equal(t, schema.PortRight, got.OutputPortPosition, "other fields unchanged")

	require.NoError(t, s.Flush(ctx))
	raw, err := records.Get(ctx, "anycdn-flow-settings")
	require.NoError(t, err)
	var persisted schema.GlobalSettings
	require.NoError(t, json.Unmarshal(raw, &persisted))
	assert.Equal(t, got, persisted)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	before := s.Get()

	tests := []struct {
		name  string
		patch schema.SettingsPatch
	}{
		{"port position", schema.SettingsPatch{OutputPortPosition: ptr(schema.PortPosition("middle"))}},
		{"port size", schema.SettingsPatch{PortSize: ptr(schema.PortSize("huge"))}},
		{"font size", schema.SettingsPatch{LabelFontSize: ptr(schema.LabelFontSize("xxl"))}},
		{"theme", schema.SettingsPatch{Theme: ptr(schema.Theme("sepia")), GridVisible: ptr(false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Update(context.Background(), tt.patch)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
			assert.Equal(t, before, s.Get())
		})
	}
}

func TestReset(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()
	hub := streaming.NewMemoryHub()
	s.hub = hub
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventSettingsReset}})
	require.NoError(t, err)
	defer cancel()

	_, err = s.Update(ctx, schema.SettingsPatch{Theme: ptr(schema.ThemeDark)})
	require.NoError(t, err)

	got := s.Reset(ctx)
	assert.Equal(t, schema.DefaultSettings(), got)
	require.NoError(t, s.Flush(ctx))
	_, err = records.Get(ctx, "anycdn-flow-settings")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	e := <-ch
	assert.Equal(t, schema.EventSettingsReset, e.EventType)
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		record string
		check  func(t *testing.T, got schema.GlobalSettings)
	}{
		{
			name:   "partial record",
			record: `{"theme": "dark", "portSize": "large"}`,
			check: func(t *testing.T, got schema.GlobalSettings) {
				want := schema.DefaultSettings()
				want.Theme = schema.ThemeDark
				want.PortSize = schema.PortSizeLarge
				assert.Equal(t, want, got)
			},
		},
		{
			name:   "unknown keys ignored",
			record: `{"snapToGrid": true, "minimap": true}`,
			check: func(t *testing.T, got schema.GlobalSettings) {
				assert.True(t, got.SnapToGrid)
			},
		},
		{
			name:   "invalid value falls back",
			record: `{"theme": "neon", "labelPosition": "top"}`,
			check: func(t *testing.T, got schema.GlobalSettings) {
				assert.Equal(t, schema.ThemeLight, got.Theme)
				assert.Equal(t, schema.LabelTop, got.LabelPosition)
			},
		},
		{
			name:   "malformed record",
			record: `{"theme": `,
			check: func(t *testing.T, got schema.GlobalSettings) {
				assert.Equal(t, schema.DefaultSettings(), got)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, records := newTestStore(t)
			require.NoError(t, records.Put(ctx, "anycdn-flow-settings", []byte(tt.record)))
			got := s.Load(ctx)
			tt.check(t, got)
			assert.Equal(t, got, s.Get())
		})
	}
}

func TestLoadMissingRecord(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, schema.DefaultSettings(), s.Load(context.Background()))
}

func TestReduce(t *testing.T) {
	v := validation.NewStructValidator()
	cur := schema.DefaultSettings()

	next, err := Reduce(v, cur, schema.SettingsPatch{InputPortPosition: ptr(schema.PortTop)})
	require.NoError(t, err)
	assert.Equal(t, schema.PortTop, next.InputPortPosition)
	assert.Equal(t, schema.PortLeft, cur.InputPortPosition)

	same, err := Reduce(v, cur, schema.SettingsPatch{InputPortPosition: ptr(schema.PortPosition("diagonal"))})
	require.Error(t, err)
	assert.Equal(t, cur, same)
}
