package model

// Disposition is the allow/block decision applied to an element.
type Disposition string

const (
	Allow Disposition = "allow"
	Block Disposition = "block"
)

// DetectorStats counts tracked descriptors per kind.
type DetectorStats struct {
	TotalImages      int `json:"totalImages"`
	ImgElements      int `json:"imgElements"`
	BackgroundImages int `json:"backgroundImages"`
	VideoPosters     int `json:"videoPosters"`
}

// FilterStats counts dispositions currently held by the filter.
type FilterStats struct {
	TotalProcessed int          `json:"totalProcessed"`
	TotalBlocked   int          `json:"totalBlocked"`
	TotalAllowed   int          `json:"totalAllowed"`
	BlockedByKind  map[Kind]int `json:"blockedByKind"`
	Hidden         int          `json:"hidden"`
}

// Stats is the outbound snapshot polled by the UI collaborator.
type Stats struct {
	DetectorStats
	FilterStats
	IsRunning bool `json:"isRunning"`
}
