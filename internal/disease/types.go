// Package disease resolves predicted disease names into displayable
// descriptions from the local reference table or the NCPMS service.
package disease

// Descriptor describes a disease in the same shape whichever source
// produced it.
type Descriptor struct {
	Name        string
	EnglishName string // local entries only
	Condition   string
	Symptoms    string
	Prevention  string
	ImageURL    string
	Crop        string
}

// Source names where a resolution came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceExternal Source = "external"
)

// Resolution is a resolved disease plus the identifiers persisted with a
// diagnosis. A local resolution has DiseaseID == ReferenceCode; an external
// one has a nil DiseaseID and the NCPMS key as ReferenceCode.
type Resolution struct {
	Descriptor    Descriptor
	DiseaseID     *string
	ReferenceCode string
	Source        Source
}

func (r *Resolution) clone() *Resolution {
	c := *r
	if r.DiseaseID != nil {
		id := *r.DiseaseID
		c.DiseaseID = &id
	}
	return &c
}
