package model

import "github.com/raysh454/cleanweb/internal/dom"

// Kind names the way an element carries its image.
type Kind string

const (
	KindImg        Kind = "img"
	KindBackground Kind = "background"
	KindVideo      Kind = "video"
)

// NoSource is the locator used when an element's image could not be resolved.
const NoSource = "none"

// Descriptor identifies one candidate image. Element is owned by the
// document; the pipeline only references it.
type Descriptor struct {
	Element *dom.Element `json:"-"`
	Source  string       `json:"src"`
	Kind    Kind         `json:"type"`
}

// ElementID returns the stable id of the owning element, or "" when unset.
func (d Descriptor) ElementID() string {
	if d.Element == nil {
		return ""
	}
	return d.Element.ID()
}
