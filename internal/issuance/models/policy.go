package models

// Policy is the per-type rule set the orchestrator consults instead of
// branching on document type.
type Policy struct {
	// RequiresApplicant means the scope is a single applicant.
	RequiresApplicant bool
	// CoApplicants means the scope covers every active applicant on the
	// property and the artifact repeats one block per applicant.
	CoApplicants bool
	// Numbered types allocate their own sequential legal number.
	Numbered bool
	// InheritsFrom names the type whose ACTIVE number is printed instead.
	InheritsFrom DocumentType
	// RequiresPricing fails issuance when the district has no unit price.
	RequiresPricing bool
}

var policies = map[DocumentType]Policy{
	Receipt: {
		RequiresApplicant: true,
		Numbered:          true,
		RequiresPricing:   true,
	},
	SaleDeed: {
		CoApplicants:    true,
		InheritsFrom:    Receipt,
		RequiresPricing: true,
	},
	FinancialCert: {
		RequiresApplicant: true,
		RequiresPricing:   true,
	},
	Requisition: {
		RequiresPricing: true,
	},
}

// PolicyFor returns the policy for t.
func PolicyFor(t DocumentType) (Policy, bool) {
	p, ok := policies[t]
	return p, ok
}

// DocumentTypes lists every known type in a stable order.
func DocumentTypes() []DocumentType {
	return []DocumentType{Receipt, SaleDeed, FinancialCert, Requisition}
}
