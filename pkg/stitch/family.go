package stitch

import "github.com/kimjh/vlanstitch/pkg/classify"

// Capability is the per-provider-family behavior table. The
// negotiator and Aggregate consume this struct directly; there is no
// family inheritance hierarchy.
type Capability struct {
	Translates          bool
	ReportsSliverStatus bool
	NeedsReadyPoll      bool
	LocalVlanBudget     int
	GraceSecs           int
	ManifestParserID    string
	ErrorClassifierID   string
}

// capabilities is keyed by classify.Family: local retry budgets 50
// generic / 3 DCN, grace periods 30s generic / 600s DCN.
var capabilities = map[classify.Family]Capability{
	classify.Generic: {
		Translates: true, ReportsSliverStatus: false, NeedsReadyPoll: false,
		LocalVlanBudget: 50, GraceSecs: 30,
		ManifestParserID: "generic", ErrorClassifierID: "generic",
	},
	classify.PG: {
		Translates: true, ReportsSliverStatus: false, NeedsReadyPoll: false,
		LocalVlanBudget: 50, GraceSecs: 30,
		ManifestParserID: "generic", ErrorClassifierID: "pg",
	},
	classify.EG: {
		Translates: true, ReportsSliverStatus: false, NeedsReadyPoll: false,
		LocalVlanBudget: 50, GraceSecs: 30,
		ManifestParserID: "eg", ErrorClassifierID: "eg",
	},
	classify.DCN: {
		Translates: false, ReportsSliverStatus: true, NeedsReadyPoll: true,
		LocalVlanBudget: 3, GraceSecs: 600,
		ManifestParserID: "generic", ErrorClassifierID: "dcn",
	},
	classify.GRAM: {
		Translates: true, ReportsSliverStatus: false, NeedsReadyPoll: false,
		LocalVlanBudget: 50, GraceSecs: 30,
		ManifestParserID: "generic", ErrorClassifierID: "generic",
	},
}

// CapabilityFor returns the capability struct for family.
func CapabilityFor(family classify.Family) Capability {
	if c, ok := capabilities[family]; ok {
		return c
	}
	return capabilities[classify.Generic]
}
