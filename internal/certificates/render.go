package certificates

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/courseloop/courseloop-backend/internal/logger"
)

// RenderInput is everything the renderer draws onto the template.
type RenderInput struct {
	LearnerName string
	CourseTitle string
	Number      string
	IssuedAt    time.Time
	FormValues  map[string]string
}

type Renderer interface {
	Render(courseID string, in RenderInput) (*bytes.Buffer, error)
}

type renderer struct {
	log *logger.Logger
	cfg *Config
}

func NewRenderer(log *logger.Logger, cfg *Config) (Renderer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("certificate config required")
	}
	return &renderer{log: log.With("component", "CertificateRenderer"), cfg: cfg}, nil
}

// Render draws every configured text element at its fixed position over
// the course's PNG template and returns the encoded PNG. Template and
// font are read per call; issuance volume is far too low for caching to
// matter.
func (r *renderer) Render(courseID string, in RenderInput) (*bytes.Buffer, error) {
	cc, err := r.cfg.ForCourse(courseID)
	if err != nil {
		return nil, err
	}
	if in.LearnerName == "" {
		return nil, fmt.Errorf("learner name required")
	}
	if in.Number == "" {
		return nil, fmt.Errorf("certificate number required")
	}
	if in.IssuedAt.IsZero() {
		in.IssuedAt = time.Now()
	}

	tpl, err := loadTemplate(cc.TemplatePath)
	if err != nil {
		return nil, err
	}
	fontBytes, err := os.ReadFile(cc.FontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}

	dc := gg.NewContextForImage(tpl)
	dc.SetRGB(0, 0, 0)

	draw := func(p TextPlacement, text string) {
		if text == "" {
			return
		}
		dc.SetFontFace(truetype.NewFace(parsedFont, &truetype.Options{
			Size:    p.FontSize,
			DPI:     72,
			Hinting: font.HintingNone,
		}))
		tw, th := dc.MeasureString(text)
		dc.DrawString(text, p.X-(tw/2), p.Y+(th/2))
	}

	draw(cc.Name, in.LearnerName)
	if cc.CourseTitle != nil {
		draw(*cc.CourseTitle, in.CourseTitle)
	}
	draw(cc.Date, in.IssuedAt.Format(cc.DateFormat))
	draw(cc.Number, in.Number)
	for _, f := range cc.Form {
		if f.Placement == nil {
			continue
		}
		draw(*f.Placement, in.FormValues[f.Name])
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return &buf, nil
}

func loadTemplate(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open certificate template: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode certificate template: %w", err)
	}
	return img, nil
}
