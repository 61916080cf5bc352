// Package prompt renders scenes into image generation prompts.
package prompt

import (
	"fmt"
	"strings"

	"scenegen/internal/domain"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = "A {style} {scene_type} scene showing: {script_line}. With props: {props}."

const noProps = "no props"

// Placeholders lists the names a template may reference.
var Placeholders = []string{"style", "scene_type", "script_line", "props"}

// Render substitutes the scene fields into template. Doubled braces render as
// literal braces.
func Render(scene domain.Scene, template string) (string, error) {
	props := noProps
	if len(scene.Props) > 0 {
		props = strings.Join(scene.Props, ", ")
	}
	values := map[string]string{
		"style":       scene.StyleOrDefault(),
		"scene_type":  scene.SceneType,
		"script_line": scene.ScriptLine,
		"props":       props,
	}
	return expand(template, func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	})
}

// Validate reports whether template only references known placeholders.
func Validate(template string) error {
	_, err := expand(template, func(name string) (string, bool) {
		for _, p := range Placeholders {
			if p == name {
				return "", true
			}
		}
		return "", false
	})
	return err
}

func expand(template string, lookup func(string) (string, bool)) (string, error) {
	var sb strings.Builder
	sb.Grow(len(template))
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d", domain.ErrTemplate, i)
			}
			name := template[i+1 : i+1+end]
			value, ok := lookup(name)
			if !ok {
				return "", fmt.Errorf("%w: unknown placeholder {%s}", domain.ErrTemplate, name)
			}
			sb.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", domain.ErrTemplate, i)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}
