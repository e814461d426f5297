// Package domain defines core domain types, constants, and validation for
// the apiloom engine. It acts as the validation gate at pipeline entry
// points: descriptors that pass ValidateDescriptor are trusted downstream.
package domain

// ServiceDescriptor is the structured profile of one discovered capability
// provider. Descriptors are immutable once loaded; the embedding and graph
// layers copy what they need instead of holding references back here.
type ServiceDescriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description,omitempty"`
	Endpoints    []string `json:"endpoints,omitempty"`
	Capabilities []string `json:"capabilities"`
	Source       string   `json:"source,omitempty"`
}

// Known category tags. Type is an open string; these are the categories
// the graph builder and orchestration heuristics know about.
const (
	CategoryAI             = "ai"
	CategoryVersionControl = "version-control"
	CategoryCommunication  = "communication"
	CategoryData           = "data"
	CategoryPayments       = "payments"
	CategoryCloud          = "cloud"
	CategoryMonitoring     = "monitoring"
	CategoryOther          = "other"
)

// CapabilityRepoManagement is the capability tag the orchestration
// suggestion rules look for when a requirement asks to save content.
const CapabilityRepoManagement = "repository-management"

// ValidSources enumerates accepted discovery provenance markers.
// Prefixed sources like "env:CI" or "config:.npmrc" are also accepted.
var ValidSources = map[string]bool{
	"env":      true,
	"config":   true,
	"manifest": true,
	"manual":   true,
}

// HasCapability reports whether the descriptor declares the capability.
func (d ServiceDescriptor) HasCapability(capability string) bool {
	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
