package wordpress

// ExchangeResponse is the envelope returned for a one-time connect token.
type ExchangeResponse struct {
	Success     bool        `json:"success"`
	Credentials Credentials `json:"credentials"`
	Site        SiteInfo    `json:"site"`
}

type Credentials struct {
	Username    string `json:"username"`
	AppPassword string `json:"appPassword"`
	Auth        string `json:"auth"` // base64(username:appPassword)
}

type SiteInfo struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	RestURL      string `json:"restUrl"`
	MCPEndpoint  string `json:"mcpEndpoint"`
	AbilitiesURL string `json:"abilitiesUrl"`
}

// Fingerprint summarizes the remote configuration. Only Hash is compared;
// the components are informational.
type Fingerprint struct {
	Hash       string     `json:"hash"`
	Components Components `json:"components"`
	Generated  int64      `json:"generated"`
}

type Components struct {
	PluginsHash   string `json:"plugins_hash"`
	ThemeHash     string `json:"theme_hash"`
	AgentsHash    string `json:"agents_hash"`
	ProvidersHash string `json:"providers_hash"`
	WooActive     bool   `json:"woo_active"`
}

// LocalSettings tells the site where this device's sidecar is listening.
type LocalSettings struct {
	Port       int    `json:"port"`
	DeviceID   string `json:"device_id"`
	Enabled    bool   `json:"enabled"`
	ProjectID  string `json:"project_id"`
	ProjectDir string `json:"project_dir"`
}
