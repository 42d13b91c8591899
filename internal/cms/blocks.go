package cms

import (
	"encoding/json"
	"fmt"
)

type BlockKind string

const (
	BlockKindVideo     BlockKind = "video"
	BlockKindText      BlockKind = "text"
	BlockKindImage     BlockKind = "image"
	BlockKindAudio     BlockKind = "audio"
	BlockKindSlideshow BlockKind = "slideshow"
)

// ContentBlock is the tagged variant for lesson content. Exactly one of
// the payload pointers is set, matching Kind. New block kinds are added as
// new cases in UnmarshalJSON; an unknown tag is a decode error rather than
// a silently skipped block.
type ContentBlock struct {
	Kind      BlockKind       `json:"kind"`
	Video     *VideoBlock     `json:"video,omitempty"`
	Text      *TextBlock      `json:"text,omitempty"`
	Image     *ImageBlock     `json:"image,omitempty"`
	Audio     *AudioBlock     `json:"audio,omitempty"`
	Slideshow *SlideshowBlock `json:"slideshow,omitempty"`
}

type VideoBlock struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
	PosterURL       string `json:"poster_url,omitempty"`
}

type TextBlock struct {
	HTML string `json:"html"`
}

type ImageBlock struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type AudioBlock struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
}

type SlideshowBlock struct {
	Slides []ImageBlock `json:"slides"`
}

func (b *ContentBlock) UnmarshalJSON(raw []byte) error {
	var head struct {
		Kind BlockKind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return err
	}

	type alias ContentBlock
	var decoded alias
	switch head.Kind {
	case BlockKindVideo, BlockKindText, BlockKindImage, BlockKindAudio, BlockKindSlideshow:
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cms: unknown content block kind %q", head.Kind)
	}

	*b = ContentBlock(decoded)
	if err := b.validate(); err != nil {
		return err
	}
	return nil
}

func (b *ContentBlock) validate() error {
	var ok bool
	switch b.Kind {
	case BlockKindVideo:
		ok = b.Video != nil
	case BlockKindText:
		ok = b.Text != nil
	case BlockKindImage:
		ok = b.Image != nil
	case BlockKindAudio:
		ok = b.Audio != nil
	case BlockKindSlideshow:
		ok = b.Slideshow != nil
	}
	if !ok {
		return fmt.Errorf("cms: content block kind %q missing its payload", b.Kind)
	}
	return nil
}
