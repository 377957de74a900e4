package classifier

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/bep/imagemeta"
	"github.com/raysh454/cleanweb/internal/model"
)

const (
	HeuristicName = "heuristic"

	heuristicPerMatch      = 3.0
	heuristicHitConfidence = 0.7
	heuristicConfidence    = 0.5
)

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)adult`),
	regexp.MustCompile(`(?i)nude`),
	regexp.MustCompile(`(?i)nsfw`),
	regexp.MustCompile(`(?i)explicit`),
	regexp.MustCompile(`(?i)porn`),
}

// Heuristic scores a locator by the number of suspicious keywords it
// contains. Byte inputs are scored on their EXIF, IPTC and XMP text.
type Heuristic struct {
	*params
}

func NewHeuristic() *Heuristic {
	return &Heuristic{params: newParams()}
}

func (h *Heuristic) Name() string { return HeuristicName }

func (h *Heuristic) Fork() Classifier {
	return &Heuristic{params: h.params.clone()}
}

func (h *Heuristic) Classify(_ context.Context, in Input) (*model.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.HasBytes() {
		text := metadataText(in.Data)
		if in.URL != "" {
			text = append(text, in.URL)
		}
		return h.score(text, "Suspicious metadata pattern detected"), nil
	}
	return h.score([]string{in.URL}, "Suspicious URL pattern detected"), nil
}

// ScoreLocator is the URL-only path, used as the fallback of other variants.
func (h *Heuristic) ScoreLocator(locator string) *model.Result {
	return h.score([]string{locator}, "Suspicious URL pattern detected")
}

func (h *Heuristic) score(texts []string, reason string) *model.Result {
	matches := countPatterns(texts)
	r := &model.Result{Confidence: heuristicConfidence, Reasons: []string{}, Classifier: HeuristicName}
	measured := 0.0
	if matches > 0 {
		measured = model.ClampSeverity(heuristicPerMatch * float64(matches))
		r.Confidence = heuristicHitConfidence
		r.Reasons = append(r.Reasons, reason)
	}
	return h.verdict(r, measured)
}

// countPatterns counts distinct patterns found in any of texts.
func countPatterns(texts []string) int {
	n := 0
	for _, p := range suspiciousPatterns {
		for _, t := range texts {
			if p.MatchString(t) {
				n++
				break
			}
		}
	}
	return n
}

// Free-text tags worth scanning.
var metadataTags = map[imagemeta.Source]map[string]bool{
	imagemeta.EXIF: {"ImageDescription": true, "UserComment": true, "Artist": true, "XPKeywords": true, "XPSubject": true, "XPTitle": true},
	imagemeta.IPTC: {"Keywords": true, "Caption-Abstract": true, "Headline": true, "ObjectName": true},
	imagemeta.XMP:  {"description": true, "title": true, "subject": true, "Description": true, "Title": true, "Subject": true},
}

// metadataText extracts descriptive text tags. Undecodable metadata yields
// nothing.
func metadataText(data []byte) []string {
	var out []string
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := metadataTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			out = append(out, tagStrings(ti.Value)...)
			return nil
		},
	})
	if err != nil {
		return nil
	}
	return out
}

func tagStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []byte:
		return []string{strings.TrimRight(string(val), "\x00")}
	case []any:
		var out []string
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
