package domain

import (
	"fmt"
	"strings"
)

// DefaultStyle is used when neither the scene nor the request carries a style.
const DefaultStyle = "photorealistic"

// Styles lists the rendering styles offered to users. Any other free-text
// style is accepted as well.
var Styles = []string{
	"photorealistic",
	"animated",
	"3D animation",
	"cartoon",
	"digital art",
	"cinematic",
	"sketch/artistic",
}

// Scene is one unit of script content mapped to exactly one generated image.
type Scene struct {
	SceneNumber int      `json:"scene_number"`
	ScriptLine  string   `json:"script_line"`
	SceneType   string   `json:"scene_type"`
	Props       []string `json:"props"`
	Style       string   `json:"style,omitempty"`
}

// StyleOrDefault returns the scene style, falling back to DefaultStyle.
func (s Scene) StyleOrDefault() string {
	if style := strings.TrimSpace(s.Style); style != "" {
		return style
	}
	return DefaultStyle
}

// ImageFilename is the file the scene image is written to.
func (s Scene) ImageFilename() string {
	return fmt.Sprintf("scene_%03d.png", s.SceneNumber)
}

// SplitProps turns a comma-joined prop string into a list. Blank entries are
// dropped and an empty input yields an empty, non-nil list.
func SplitProps(raw string) []string {
	props := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			props = append(props, p)
		}
	}
	return props
}

// NormalizeStyle trims a user supplied style and applies the default.
func NormalizeStyle(style string) string {
	if style = strings.TrimSpace(style); style != "" {
		return style
	}
	return DefaultStyle
}

// WithStyle returns a copy of scenes with style attached to every scene.
func WithStyle(scenes []Scene, style string) []Scene {
	out := make([]Scene, len(scenes))
	for i, sc := range scenes {
		sc.Style = style
		if sc.Props == nil {
			sc.Props = []string{}
		}
		out[i] = sc
	}
	return out
}
