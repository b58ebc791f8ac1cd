package config

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Route schema versions accepted by this build. Files written by newer
// attribot releases (2.x) are rejected instead of half-parsed.
const (
	CurrentRoutesSchemaVersion = "1.0"
	maxRoutesSchemaVersion     = "2.0"
)

// Route declares one slash command and the n8n webhook it feeds.
type Route struct {
	// Name is the slash command name, e.g. "attribute-speakers"
	Name string `yaml:"name" json:"name"`

	// Description is shown in the Discord command picker
	Description string `yaml:"description" json:"description"`

	// WebhookPath is the n8n path segment the execution ID is appended to,
	// e.g. "webhook-waiting"
	WebhookPath string `yaml:"webhook_path" json:"webhook_path"`

	// AllowedRoleIDs restricts the command to members holding one of these
	// roles. Empty means anyone who can see the command may use it.
	AllowedRoleIDs []string `yaml:"allowed_role_ids" json:"allowed_role_ids,omitempty"`

	// Ephemeral controls whether replies are visible only to the invoker
	Ephemeral bool `yaml:"ephemeral" json:"ephemeral"`
}

// RoutesFile is the on-disk shape of the routes config.
type RoutesFile struct {
	SchemaVersion string  `yaml:"schema_version" json:"schema_version"`
	Routes        []Route `yaml:"routes" json:"routes"`
}

// DefaultRoutesFile returns the routes config written on first start:
// the single attribute-speakers command the service originally shipped with.
func DefaultRoutesFile() *RoutesFile {
	return &RoutesFile{
		SchemaVersion: CurrentRoutesSchemaVersion,
		Routes: []Route{
			{
				Name:        "attribute-speakers",
				Description: "Send speaker attribution back to a waiting n8n workflow.",
				WebhookPath: "webhook-waiting",
				Ephemeral:   true,
			},
		},
	}
}

// Validate checks schema version and route shape.
//
// Error cases: unsupported schema version, no routes, duplicate command
// names, invalid command names, empty webhook paths.
func (f *RoutesFile) Validate() error {
	if f.SchemaVersion == "" {
		return fmt.Errorf("schema_version is required")
	}

	schemaVer, err := goversion.NewVersion(f.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", f.SchemaVersion, err)
	}
	minVer := goversion.Must(goversion.NewVersion(CurrentRoutesSchemaVersion))
	maxVer := goversion.Must(goversion.NewVersion(maxRoutesSchemaVersion))
	if schemaVer.LessThan(minVer) || schemaVer.GreaterThanOrEqual(maxVer) {
		return fmt.Errorf("unsupported schema_version %q (supported: >= %s, < %s)",
			f.SchemaVersion, CurrentRoutesSchemaVersion, maxRoutesSchemaVersion)
	}

	if len(f.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	seen := make(map[string]bool, len(f.Routes))
	for i, route := range f.Routes {
		if err := route.validate(); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if seen[route.Name] {
			return fmt.Errorf("duplicate route name %q", route.Name)
		}
		seen[route.Name] = true
	}
	return nil
}

func (r *Route) validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	// Discord command name constraints: lowercase, 1-32 chars, no spaces.
	if len(r.Name) > 32 || strings.ContainsAny(r.Name, " \t") || r.Name != strings.ToLower(r.Name) {
		return fmt.Errorf("name %q is not a valid command name (lowercase, max 32 chars, no spaces)", r.Name)
	}
	if r.WebhookPath == "" {
		return fmt.Errorf("webhook_path is required")
	}
	if strings.HasPrefix(r.WebhookPath, "/") || strings.HasSuffix(r.WebhookPath, "/") {
		return fmt.Errorf("webhook_path %q must not have leading or trailing slashes", r.WebhookPath)
	}
	return nil
}

// Find returns the route for a command name, or nil.
func (f *RoutesFile) Find(name string) *Route {
	for i := range f.Routes {
		if f.Routes[i].Name == name {
			return &f.Routes[i]
		}
	}
	return nil
}
