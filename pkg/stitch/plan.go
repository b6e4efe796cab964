package stitch

import "github.com/kimjh/vlanstitch/pkg/classify"

// Plan is the yaml-tagged document the scheduler is handed at the
// start of a run (and again after each PCE escalation): a metadata
// block plus a spec section naming the concrete entities.
type Plan struct {
	APIVersion string     `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Metadata   PlanMeta   `yaml:"metadata"`
	Spec       PlanSpec   `yaml:"spec"`
}

// PlanMeta carries the operation name used in persisted artifact
// filenames.
type PlanMeta struct {
	OpName      string `yaml:"opName"`
	Slice       string `yaml:"slice"`
	Description string `yaml:"description,omitempty"`
}

// PlanSpec lists the paths and aggregates that make up one expanded
// plan document.
type PlanSpec struct {
	Paths      []PlanPath      `yaml:"paths"`
	Aggregates []PlanAggregate `yaml:"aggregates"`
}

// PlanPath is one path's hop chain as delivered by the RSpec codec /
// PlanExpander, before being loaded into a RunContext arena.
type PlanPath struct {
	GlobalID string        `yaml:"globalId"`
	Hops     []PlanHop      `yaml:"hops"`
}

// PlanHop is the wire shape of one hop.
type PlanHop struct {
	StableID           string `yaml:"id"`
	InterfaceURN       string `yaml:"interfaceUrn"`
	AggregateURN       string `yaml:"aggregateUrn"`
	ImportFromStableID string `yaml:"importFrom,omitempty"`
	Xlates             bool   `yaml:"xlates"`
	Producer           bool   `yaml:"producer,omitempty"`
	Consumer           bool   `yaml:"consumer,omitempty"`
	RequestedSuggested string `yaml:"requestedSuggested,omitempty"`
	RequestedRange     string `yaml:"requestedRange,omitempty"`
	SCSRange           string `yaml:"scsRange,omitempty"`
	Loose              bool   `yaml:"loose,omitempty"`
	ExcludeFromPlan    bool   `yaml:"excludeFromPlan,omitempty"`
}

// PlanAggregate carries per-aggregate attributes not derivable purely
// from its hops: provider family, protocol version, user-pinning, and
// the dependency edges the scheduler topologically sorts on.
type PlanAggregate struct {
	URN             string   `yaml:"urn"`
	Synonyms        []string `yaml:"synonyms,omitempty"`
	Family          string   `yaml:"family"`
	APIVersion      int      `yaml:"apiVersion"`
	UserRequested   bool     `yaml:"userRequested,omitempty"`
	DependsOn       []string `yaml:"dependsOn,omitempty"`
	ProviderURL     string   `yaml:"providerUrl"`
}

// ParseFamily maps the plan document's family string onto classify.Family.
func ParseFamily(s string) classify.Family {
	switch s {
	case "PG":
		return classify.PG
	case "EG":
		return classify.EG
	case "DCN":
		return classify.DCN
	case "GRAM":
		return classify.GRAM
	default:
		return classify.Generic
	}
}
