package jurisdiction

import "strings"

// Authority identifies the municipal body responsible for a stretch of road.
type Authority string

const (
	TMC   Authority = "TMC"
	BMC   Authority = "BMC"
	NMMC  Authority = "NMMC"
	Other Authority = "OTHER"
)

type rule struct {
	keywords  []string
	authority Authority
}

// rules are evaluated in order and the first match wins. "navi mumbai" must
// stay ahead of the bare "mumbai" keyword.
var rules = []rule{
	{keywords: []string{"thane"}, authority: TMC},
	{keywords: []string{"navi mumbai"}, authority: NMMC},
	{keywords: []string{"mumbai", "bmc"}, authority: BMC},
}

// Route maps a free-text address to the authority that owns it. It never
// fails: anything unrecognised belongs to Other.
func Route(address string) Authority {
	normalized := strings.ToLower(address)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(normalized, kw) {
				return r.authority
			}
		}
	}
	return Other
}

// All lists the known authorities.
func All() []Authority {
	return []Authority{TMC, BMC, NMMC, Other}
}

// ParseAuthority accepts an authority name in any case.
func ParseAuthority(value string) (Authority, bool) {
	candidate := Authority(strings.ToUpper(strings.TrimSpace(value)))
	for _, a := range All() {
		if a == candidate {
			return a, true
		}
	}
	return "", false
}

// Name returns the long-form name of the authority.
func (a Authority) Name() string {
	switch a {
	case TMC:
		return "Thane Municipal Corporation"
	case BMC:
		return "Brihanmumbai Municipal Corporation"
	case NMMC:
		return "Navi Mumbai Municipal Corporation"
	default:
		return "Unassigned"
	}
}
