package certificates

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TextPlacement is a fixed pixel position on the certificate template.
// Coordinates are the anchor center of the drawn string.
type TextPlacement struct {
	X        float64 `yaml:"x" validate:"gte=0"`
	Y        float64 `yaml:"y" validate:"gte=0"`
	FontSize float64 `yaml:"font_size" validate:"gt=0"`
}

// FormField describes one entry of the per-course claim form. Submitted
// values are validated against this before the issuance job will render.
type FormField struct {
	Name      string         `yaml:"name" validate:"required"`
	Label     string         `yaml:"label"`
	Required  bool           `yaml:"required"`
	Pattern   string         `yaml:"pattern"`
	MaxLen    int            `yaml:"max_len"`
	Placement *TextPlacement `yaml:"placement"`
}

// CourseConfig is the per-course certificate recipe: which PNG template
// to draw on, which font, and where each text element lands.
type CourseConfig struct {
	TemplatePath string         `yaml:"template_path" validate:"required"`
	FontPath     string         `yaml:"font_path" validate:"required"`
	DateFormat   string         `yaml:"date_format"`
	Name         TextPlacement  `yaml:"name" validate:"required"`
	CourseTitle  *TextPlacement `yaml:"course_title"`
	Date         TextPlacement  `yaml:"date" validate:"required"`
	Number       TextPlacement  `yaml:"number" validate:"required"`
	Form         []FormField    `yaml:"form"`
}

type configFile struct {
	Default *CourseConfig            `yaml:"default"`
	Courses map[string]*CourseConfig `yaml:"courses"`
}

// Config holds every loaded course recipe. Lookup falls back to the
// default recipe when a course has no entry of its own.
type Config struct {
	def      *CourseConfig
	byCourse map[string]*CourseConfig
	validate *validator.Validate
}

func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate config %q: %w", path, err)
	}
	var cf configFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse certificate config %q: %w", path, err)
	}
	if cf.Default == nil && len(cf.Courses) == 0 {
		return nil, fmt.Errorf("certificate config %q declares no courses and no default", path)
	}

	v := validator.New()
	check := func(label string, cc *CourseConfig) error {
		if err := v.Struct(cc); err != nil {
			return fmt.Errorf("certificate config entry %q invalid: %w", label, err)
		}
		if cc.DateFormat == "" {
			cc.DateFormat = "2 January 2006"
		}
		for i := range cc.Form {
			if cc.Form[i].Pattern != "" {
				if _, err := regexp.Compile(cc.Form[i].Pattern); err != nil {
					return fmt.Errorf("certificate config entry %q form field %q has invalid pattern: %w", label, cc.Form[i].Name, err)
				}
			}
		}
		return nil
	}
	if cf.Default != nil {
		if err := check("default", cf.Default); err != nil {
			return nil, err
		}
	}
	for id, cc := range cf.Courses {
		if err := check(id, cc); err != nil {
			return nil, err
		}
	}

	return &Config{def: cf.Default, byCourse: cf.Courses, validate: v}, nil
}

func LoadConfigFromEnv() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("CERTIFICATE_CONFIG_PATH"))
	if path == "" {
		return nil, fmt.Errorf("missing env var CERTIFICATE_CONFIG_PATH")
	}
	return LoadConfig(path)
}

// ForCourse returns the recipe for a course id, or the default recipe.
func (c *Config) ForCourse(courseID string) (*CourseConfig, error) {
	if cc, ok := c.byCourse[courseID]; ok {
		return cc, nil
	}
	if c.def != nil {
		return c.def, nil
	}
	return nil, fmt.Errorf("no certificate config for course %s and no default", courseID)
}

// MissingRequiredFields returns the names of required form fields the
// submission left empty. The issuance job checks this before it consumes
// an allocation.
func (c *Config) MissingRequiredFields(courseID string, fields map[string]string) ([]string, error) {
	cc, err := c.ForCourse(courseID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, f := range cc.Form {
		if f.Required && strings.TrimSpace(fields[f.Name]) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing, nil
}

// ValidateForm checks a claim form submission against the course's
// declared fields. Unknown keys are rejected so typos surface at claim
// time instead of rendering garbage later.
func (c *Config) ValidateForm(courseID string, fields map[string]string) error {
	cc, err := c.ForCourse(courseID)
	if err != nil {
		return err
	}
	declared := make(map[string]FormField, len(cc.Form))
	for _, f := range cc.Form {
		declared[f.Name] = f
	}
	for k := range fields {
		if _, ok := declared[k]; !ok {
			return fmt.Errorf("unknown form field %q", k)
		}
	}
	for _, f := range cc.Form {
		val := strings.TrimSpace(fields[f.Name])
		if val == "" {
			if f.Required {
				return fmt.Errorf("form field %q is required", f.Name)
			}
			continue
		}
		if f.MaxLen > 0 && len(val) > f.MaxLen {
			return fmt.Errorf("form field %q exceeds %d characters", f.Name, f.MaxLen)
		}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return fmt.Errorf("form field %q pattern: %w", f.Name, err)
			}
			if !re.MatchString(val) {
				return fmt.Errorf("form field %q does not match required format", f.Name)
			}
		}
	}
	return nil
}
