package settingsstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/raysh454/cleanweb/internal/model"
	"github.com/raysh454/cleanweb/internal/settingsstore"
	"github.com/raysh454/cleanweb/internal/testutil"
)

func openStore(t *testing.T) *settingsstore.Store {
	t.Helper()
	s, err := settingsstore.Open(filepath.Join(t.TempDir(), "settings.db"), &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	in := model.Settings{
		SeverityThreshold: 3.5,
		StrictMode:        true,
		AllowList:         []string{"trusted.test", "*.cdn.test/*"},
		BlockList:         []string{"ads."},
	}
	p, err := s.Put(ctx, "Work Laptop", in)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "work-laptop" || p.CreatedAt == 0 {
		t.Errorf("profile = %+v", p)
	}

	got, err := s.Get(ctx, "work-laptop")
	if err != nil {
		t.Fatal(err)
	}
	gs := got.Settings
	if gs.SeverityThreshold != 3.5 || !gs.StrictMode ||
		!slices.Equal(gs.AllowList, in.AllowList) || !slices.Equal(gs.BlockList, in.BlockList) {
		t.Errorf("settings = %+v", gs)
	}

	// Replacing shrinks the lists.
	in.AllowList = nil
	in.SeverityThreshold = 42
	if _, err := s.Put(ctx, "work-laptop", in); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(ctx, "work-laptop")
	if len(got.Settings.AllowList) != 0 || got.Settings.SeverityThreshold != 10 {
		t.Errorf("after replace = %+v", got.Settings)
	}
}

func TestStore_MissingProfile(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, settingsstore.ErrProfileNotFound) {
		t.Errorf("get: %v", err)
	}
	def, err := s.Settings(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if def.SeverityThreshold != model.DefaultSettings().SeverityThreshold || def.StrictMode {
		t.Errorf("defaults = %+v", def)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, settingsstore.ErrProfileNotFound) {
		t.Errorf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "  !!  "); !errors.Is(err, settingsstore.ErrInvalidName) {
		t.Errorf("invalid name: %v", err)
	}
}

func TestStore_PatchListDelete(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	block := []string{"bad.test"}
	p, err := s.Patch(ctx, settingsstore.DefaultProfile, model.SettingsPatch{BlockList: &block})
	if err != nil {
		t.Fatal(err)
	}
	if p.Settings.SeverityThreshold != 5 || !slices.Equal(p.Settings.BlockList, block) {
		t.Errorf("patched new profile = %+v", p.Settings)
	}

	strict := true
	p, err = s.Patch(ctx, settingsstore.DefaultProfile, model.SettingsPatch{StrictMode: &strict})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Settings.StrictMode || !slices.Equal(p.Settings.BlockList, block) {
		t.Errorf("second patch lost fields: %+v", p.Settings)
	}

	if _, err := s.Put(ctx, "alpha", model.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "default" {
		t.Errorf("list = %+v", list)
	}

	if err := s.Delete(ctx, "default"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "default"); !errors.Is(err, settingsstore.ErrProfileNotFound) {
		t.Errorf("after delete: %v", err)
	}
	// A recreated profile must not inherit the deleted rules.
	p, err = s.Put(ctx, "default", model.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Settings.BlockList) != 0 {
		t.Errorf("stale rules = %v", p.Settings.BlockList)
	}
}
