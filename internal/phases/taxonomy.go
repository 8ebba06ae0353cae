package phases

// Category is one entry of the compliance taxonomy findings are classified against.
type Category struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var taxonomy = []Category{
	{Code: "CA", Name: "Security Assessment and Authorization"},
	{Code: "RA", Name: "Risk Assessment"},
	{Code: "CM", Name: "Configuration Management"},
	{Code: "IA", Name: "Identification and Authentication"},
	{Code: "SI", Name: "System and Information Integrity"},
}

// Taxonomy returns a copy of the fixed category list.
func Taxonomy() []Category {
	return append([]Category(nil), taxonomy...)
}

// TaxonomyLabels renders the categories as "Name (CODE)".
func TaxonomyLabels() []string {
	out := make([]string, 0, len(taxonomy))
	for _, c := range taxonomy {
		out = append(out, c.Name+" ("+c.Code+")")
	}
	return out
}

// SeverityRule maps a log level and action class to a severity.
type SeverityRule struct {
	Level    string
	Action   string
	Severity Severity
}

var severityRules = []SeverityRule{
	{Level: "ERROR", Action: "privileged action", Severity: SeverityCritical},
	{Level: "WARNING", Action: "data access", Severity: SeverityHigh},
	{Level: "INFO", Action: "successful write", Severity: SeverityMedium},
}

type groundTruthPattern struct {
	Pattern  string
	Category string
}

// groundTruthPatterns hint which category an event class belongs to.
var groundTruthPatterns = []groundTruthPattern{
	{"Unauthorized security override", "CA"},
	{"Malware detection", "SI"},
	{"Risk acceptance", "RA"},
	{"Configuration changes", "CM"},
	{"Credential issues", "IA"},
}
