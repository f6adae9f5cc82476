package registry

// Site is a linked WordPress site together with the credentials obtained
// from token exchange and the local project directory its config lives in.
type Site struct {
	ID           string `json:"id"` // UUID v4
	Name         string `json:"name"`
	URL          string `json:"url"`
	RestURL      string `json:"rest_url"`
	MCPEndpoint  string `json:"mcp_endpoint"`
	AbilitiesURL string `json:"abilities_url"`
	Username     string `json:"username"`
	AppPassword  string `json:"app_password"`
	Auth         string `json:"auth"` // base64 of username:app_password
	ProjectDir   string `json:"project_dir"`
	CreatedAt    int64  `json:"created_at"`   // unix seconds
	LastUsedAt   int64  `json:"last_used_at"` // unix seconds

	ConfigHash      string `json:"config_hash,omitempty"`
	ConfigUpdatedAt int64  `json:"config_updated_at,omitempty"`
}

// Document is the on-disk shape of the registry file.
type Document struct {
	Sites        map[string]*Site `json:"sites"`
	ActiveSiteID string           `json:"active_site_id,omitempty"`
	DeviceID     string           `json:"device_id,omitempty"`
}
