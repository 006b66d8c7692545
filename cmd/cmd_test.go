package cmd

import (
	"strings"
	"testing"

	"github.com/theirongolddev/cchat/internal/model"
)

func TestResolveProfile(t *testing.T) {
	profiles := []model.Profile{
		{ID: "a1b2c3d4-0000", Name: "Work"},
		{ID: "a1ffffff-0000", Name: "Home"},
	}

	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{"a1b2c3d4-0000", "Work", false},
		{"work", "Work", false},
		{"a1f", "Home", false},
		{"a1", "", true},
		{"nope", "", true},
	}
	for _, tt := range tests {
		got, err := resolveProfile(profiles, tt.arg)
		if tt.wantErr {
			if err == nil {
				t.Errorf("resolveProfile(%q) = %q, want error", tt.arg, got.Name)
			}
			continue
		}
		if err != nil {
			t.Errorf("resolveProfile(%q): %v", tt.arg, err)
			continue
		}
		if got.Name != tt.want {
			t.Errorf("resolveProfile(%q) = %q, want %q", tt.arg, got.Name, tt.want)
		}
	}
}

func TestResolveConversation(t *testing.T) {
	convs := []*model.Conversation{
		{ID: "1234abcd", Title: "first"},
		{ID: "1299abcd", Title: "second"},
	}

	got, err := resolveConversation(convs, "1299")
	if err != nil || got.Title != "second" {
		t.Errorf("prefix 1299 = %v, %v", got, err)
	}
	if _, err := resolveConversation(convs, "12"); err == nil {
		t.Error("ambiguous prefix resolved")
	}
	if _, err := resolveConversation(convs, "ff"); err == nil {
		t.Error("unknown prefix resolved")
	}
}

func TestApplyParam(t *testing.T) {
	p := model.DefaultParams()

	for _, kv := range []string{"model=claude-3-opus-20240229", "temperature=0.2", "max-tokens=512", "top-p=0.9", "top-k=40", "stop=###, END ,", "system=Be terse."} {
		key, value, _ := strings.Cut(kv, "=")
		if err := applyParam(&p, key, value); err != nil {
			t.Fatalf("applyParam(%s): %v", kv, err)
		}
	}
	if p.Model != "claude-3-opus-20240229" || p.Temperature != 0.2 || p.MaxTokens != 512 || p.TopP != 0.9 {
		t.Errorf("scalar fields = %+v", p)
	}
	if p.TopK == nil || *p.TopK != 40 {
		t.Errorf("TopK = %v", p.TopK)
	}
	if strings.Join(p.StopSequences, "|") != "###|END" {
		t.Errorf("StopSequences = %q", p.StopSequences)
	}
	if p.SystemPrompt != "Be terse." {
		t.Errorf("SystemPrompt = %q", p.SystemPrompt)
	}

	if err := applyParam(&p, "top-k", "none"); err != nil || p.TopK != nil {
		t.Errorf("top-k=none: TopK=%v err=%v", p.TopK, err)
	}
	if err := applyParam(&p, "temperature", "warm"); err == nil {
		t.Error("non-numeric temperature accepted")
	}
	if err := applyParam(&p, "colour", "blue"); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt([]string{"hello", "world"}, strings.NewReader("ignored"))
	if err != nil || got != "hello world" {
		t.Errorf("args prompt = %q, %v", got, err)
	}
	got, err = readPrompt(nil, strings.NewReader("  from stdin\n"))
	if err != nil || got != "from stdin" {
		t.Errorf("stdin prompt = %q, %v", got, err)
	}
}

func TestValidateBudget(t *testing.T) {
	for _, ok := range []string{"", "  ", "25", "12.5"} {
		if err := validateBudget(ok); err != nil {
			t.Errorf("validateBudget(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"-1", "0", "lots"} {
		if err := validateBudget(bad); err == nil {
			t.Errorf("validateBudget(%q) accepted", bad)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("sk-ant-api03-abcdefghijkl"); got != "sk-ant-a...ijkl" {
		t.Errorf("long key = %q", got)
	}
	if got := maskAPIKey("abcdef"); got != "abcd..." {
		t.Errorf("short key = %q", got)
	}
	if got := maskAPIKey("abc"); got != "****" {
		t.Errorf("tiny key = %q", got)
	}
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"daemon", "--detach", "--addr", "x", "--detach=true"})
	if strings.Join(got, " ") != "daemon --addr x" {
		t.Errorf("filterDetachArg = %v", got)
	}
}
