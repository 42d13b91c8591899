package certificates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfigYAML = `
default:
  template_path: assets/default.png
  font_path: assets/font.ttf
  name: {x: 400, y: 300, font_size: 42}
  date: {x: 400, y: 500, font_size: 18}
  number: {x: 700, y: 560, font_size: 14}
courses:
  aaaaaaaa-0000-0000-0000-000000000001:
    template_path: assets/special.png
    font_path: assets/font.ttf
    date_format: "02.01.2006"
    name: {x: 500, y: 320, font_size: 48}
    date: {x: 500, y: 520, font_size: 20}
    number: {x: 760, y: 580, font_size: 14}
    form:
      - name: institution
        label: Institution
        required: true
        max_len: 64
        placement: {x: 500, y: 420, font_size: 22}
      - name: employee_id
        pattern: "^[A-Z]{2}[0-9]{4}$"
`

func writeTestConfig(t *testing.T, body string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "certificates.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestLoadConfig_FallsBackToDefaultRecipe(t *testing.T) {
	cfg := writeTestConfig(t, testConfigYAML)

	cc, err := cfg.ForCourse("ffffffff-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc.TemplatePath != "assets/default.png" {
		t.Fatalf("expected default recipe, got %q", cc.TemplatePath)
	}
	if cc.DateFormat != "2 January 2006" {
		t.Fatalf("expected default date format, got %q", cc.DateFormat)
	}

	cc, err = cfg.ForCourse("aaaaaaaa-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc.TemplatePath != "assets/special.png" || cc.DateFormat != "02.01.2006" {
		t.Fatalf("expected per-course recipe, got %+v", cc)
	}
}

func TestLoadConfig_RejectsIncompleteRecipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certificates.yaml")
	bad := "default:\n  template_path: assets/default.png\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for recipe without font and placements")
	}
}

func TestLoadConfig_RejectsBadFieldPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certificates.yaml")
	bad := strings.Replace(testConfigYAML, "^[A-Z]{2}[0-9]{4}$", "([", 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for uncompilable pattern")
	}
}

func TestValidateForm(t *testing.T) {
	cfg := writeTestConfig(t, testConfigYAML)
	courseID := "aaaaaaaa-0000-0000-0000-000000000001"

	tests := []struct {
		name    string
		fields  map[string]string
		wantErr bool
	}{
		{"valid full form", map[string]string{"institution": "ACME", "employee_id": "AB1234"}, false},
		{"optional field omitted", map[string]string{"institution": "ACME"}, false},
		{"missing required field", map[string]string{"employee_id": "AB1234"}, true},
		{"unknown field", map[string]string{"institution": "ACME", "nickname": "x"}, true},
		{"pattern mismatch", map[string]string{"institution": "ACME", "employee_id": "12ABCD"}, true},
		{"over max length", map[string]string{"institution": strings.Repeat("x", 65)}, true},
		{"empty form against course with required field", map[string]string{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := cfg.ValidateForm(courseID, tc.fields)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestMissingRequiredFields(t *testing.T) {
	cfg := writeTestConfig(t, testConfigYAML)
	courseID := "aaaaaaaa-0000-0000-0000-000000000001"

	tests := []struct {
		name    string
		fields  map[string]string
		missing []string
	}{
		{"required field present", map[string]string{"institution": "ACME"}, nil},
		{"required field absent", map[string]string{}, []string{"institution"}},
		{"blank value counts as absent", map[string]string{"institution": "   "}, []string{"institution"}},
		{"optional field alone", map[string]string{"employee_id": "AB1234"}, []string{"institution"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cfg.MissingRequiredFields(courseID, tc.fields)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.missing) {
				t.Fatalf("expected missing %v, got %v", tc.missing, got)
			}
			for i := range got {
				if got[i] != tc.missing[i] {
					t.Fatalf("expected missing %v, got %v", tc.missing, got)
				}
			}
		})
	}

	if _, err := cfg.MissingRequiredFields("no-such-course", nil); err != nil {
		t.Fatalf("default recipe has no form, expected no error: %v", err)
	}
}

func TestValidateForm_CourseWithoutFormRejectsAnyField(t *testing.T) {
	cfg := writeTestConfig(t, testConfigYAML)
	if err := cfg.ValidateForm("no-such-course", map[string]string{"institution": "ACME"}); err == nil {
		t.Fatalf("expected unknown-field error against the default recipe")
	}
	if err := cfg.ValidateForm("no-such-course", map[string]string{}); err != nil {
		t.Fatalf("unexpected error for empty form: %v", err)
	}
}
