package model

// Settings is the filter configuration supplied by the settings collaborator.
type Settings struct {
	SeverityThreshold float64  `json:"severityThreshold"`
	StrictMode        bool     `json:"strictMode"`
	AllowList         []string `json:"allowList"`
	BlockList         []string `json:"blockList"`
}

// DefaultSettings mirrors the extension's first-run defaults.
func DefaultSettings() Settings {
	return Settings{
		SeverityThreshold: 5,
		StrictMode:        false,
		AllowList:         []string{},
		BlockList:         []string{},
	}
}

// Clone returns a deep copy so callers never share list backing arrays.
func (s Settings) Clone() Settings {
	out := s
	out.AllowList = append([]string{}, s.AllowList...)
	out.BlockList = append([]string{}, s.BlockList...)
	return out
}

// SettingsPatch is a partial update; nil fields are left untouched.
type SettingsPatch struct {
	SeverityThreshold *float64  `json:"severityThreshold,omitempty"`
	StrictMode        *bool     `json:"strictMode,omitempty"`
	AllowList         *[]string `json:"allowList,omitempty"`
	BlockList         *[]string `json:"blockList,omitempty"`
}

// Apply returns s with every non-nil field of p copied over.
func (p SettingsPatch) Apply(s Settings) Settings {
	out := s.Clone()
	if p.SeverityThreshold != nil {
		out.SeverityThreshold = ClampSeverity(*p.SeverityThreshold)
	}
	if p.StrictMode != nil {
		out.StrictMode = *p.StrictMode
	}
	if p.AllowList != nil {
		out.AllowList = append([]string{}, (*p.AllowList)...)
	}
	if p.BlockList != nil {
		out.BlockList = append([]string{}, (*p.BlockList)...)
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.SeverityThreshold == nil && p.StrictMode == nil && p.AllowList == nil && p.BlockList == nil
}
