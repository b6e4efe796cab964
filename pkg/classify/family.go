package classify

import "strings"

// urnFamilyHints maps URN substrings to provider families. The URN is
// only a first guess; the am_type field of the first successful RPC is
// authoritative (FamilyFromAMType).
var urnFamilyHints = []struct {
	substr string
	family Family
}{
	{"emulab", PG},
	{"protogeni", PG},
	{"instageni", PG},
	{"exogeni", EG},
	{"ion.internet2.edu", DCN},
	{"dcn", DCN},
	{"maxgigapop", DCN},
	{"gram", GRAM},
}

// FamilyFromURN derives a provider family from an aggregate URN.
func FamilyFromURN(urn string) Family {
	u := strings.ToLower(urn)
	for _, h := range urnFamilyHints {
		if strings.Contains(u, h.substr) {
			return h.family
		}
	}
	return Generic
}

// FamilyFromAMType maps the provider-reported am_type field onto a
// Family. Unrecognized values return ok=false so the caller keeps its
// URN-derived guess.
func FamilyFromAMType(amType string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(amType)) {
	case "protogeni", "pg":
		return PG, true
	case "orca", "exogeni", "eg":
		return EG, true
	case "dcn", "oscars", "ion":
		return DCN, true
	case "gram":
		return GRAM, true
	case "":
		return Generic, false
	default:
		return Generic, false
	}
}
