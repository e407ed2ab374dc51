package pathways

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	schemaContext = "http://schema.org/"
	currencyUSD   = "USD"
)

// TypeList is a JSON-LD @type. A single entry renders as a bare string.
type TypeList []string

// MarshalJSON implements json.Marshaler.
func (t TypeList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TypeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TypeList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// Document is a Pathways JSON-LD program. The shared fields live on the
// struct itself; the variant payload is one of the embedded pointers.
type Document struct {
	Context string   `json:"@context"`
	Type    TypeList `json:"@type"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	Provider Provider `json:"provider"`

	Offers                        []Offer      `json:"offers,omitempty"`
	TimeToComplete                string       `json:"timeToComplete,omitempty"`
	OccupationalCredentialAwarded string       `json:"occupationalCredentialAwarded,omitempty"`
	StartDate                     []string     `json:"startDate,omitempty"`
	EndDate                       []string     `json:"endDate,omitempty"`
	TimeOfDay                     string       `json:"timeOfDay,omitempty"`
	MaximumEnrollment             string       `json:"maximumEnrollment,omitempty"`
	ProgramPrerequisites          *Requirement `json:"programPrerequisites,omitempty"`

	*EducationalPayload
	*WorkBasedPayload
}

// EducationalPayload holds EducationalOccupationalProgram-only fields.
type EducationalPayload struct {
	ApplicationDeadline    string          `json:"applicationDeadline,omitempty"`
	Identifier             []PropertyValue `json:"identifier,omitempty"`
	EducationalProgramMode string          `json:"educationalProgramMode,omitempty"`
}

// WorkBasedPayload holds WorkBasedProgram-only fields.
type WorkBasedPayload struct {
	TrainingSalary       *MonetaryAmountDistribution `json:"trainingSalary,omitempty"`
	SalaryUponCompletion *MonetaryAmountDistribution `json:"salaryUponCompletion,omitempty"`
}

type Provider struct {
	Type         string          `json:"@type"`
	Name         string          `json:"name"`
	URL          string          `json:"url,omitempty"`
	ContactPoint *ContactPoint   `json:"contactPoint,omitempty"`
	Address      []PostalAddress `json:"address,omitempty"`
}

type ContactPoint struct {
	Type        string `json:"@type"`
	ContactType string `json:"contactType"`
	Telephone   string `json:"telephone"`
}

type PostalAddress struct {
	Type            string `json:"@type"`
	StreetAddress   string `json:"streetAddress"`
	AddressLocality string `json:"addressLocality,omitempty"`
	AddressRegion   string `json:"addressRegion,omitempty"`
	PostalCode      string `json:"postalCode,omitempty"`
	AddressCountry  string `json:"addressCountry,omitempty"`
}

type Offer struct {
	Type               string             `json:"@type"`
	Category           string             `json:"category"`
	PriceSpecification PriceSpecification `json:"priceSpecification"`
}

type PriceSpecification struct {
	Type          string  `json:"@type"`
	Price         float64 `json:"price"`
	PriceCurrency string  `json:"priceCurrency"`
}

type PropertyValue struct {
	Type       string `json:"@type"`
	PropertyID string `json:"propertyID"`
	Value      string `json:"value"`
}

type MonetaryAmountDistribution struct {
	Type     string  `json:"@type"`
	Currency string  `json:"currency"`
	Duration string  `json:"duration"`
	Median   float64 `json:"median"`
}

// Requirement renders Prerequisites in JSON-LD casing.
type Requirement struct {
	CredentialCategory        string `json:"credentialCategory,omitempty"`
	EligibleGroups            string `json:"eligibleGroups,omitempty"`
	MaxIncomeEligibility      string `json:"maxIncomeEligibility,omitempty"`
	OtherProgramPrerequisites string `json:"otherProgramPrerequisites,omitempty"`
}

// BuildDocument renders p. Structural problems (missing name or provider,
// relative URLs, non-numeric money) are reported as ErrInvalidDocument.
func BuildDocument(p *Program) (*Document, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil program", ErrInvalidDocument)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: program name is required", ErrInvalidDocument)
	}
	if p.ProviderName == "" {
		return nil, fmt.Errorf("%w: provider name is required", ErrInvalidDocument)
	}
	for field, u := range map[string]string{"program url": p.URL, "provider url": p.ProviderURL} {
		if err := checkURL(u); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, field, err)
		}
	}

	doc := &Document{
		Context:                       schemaContext,
		Name:                          p.Name,
		Description:                   p.Description,
		URL:                           p.URL,
		TimeToComplete:                p.TimeToComplete,
		OccupationalCredentialAwarded: p.CredentialAwarded,
		StartDate:                     p.StartDates,
		EndDate:                       p.EndDates,
		TimeOfDay:                     p.TimeOfDay,
		MaximumEnrollment:             p.MaximumEnrollment,
		Provider: Provider{
			Type: "EducationalOrganization",
			Name: p.ProviderName,
			URL:  p.ProviderURL,
		},
	}
	if p.ProviderTelephone != "" {
		doc.Provider.ContactPoint = &ContactPoint{Type: "ContactPoint", ContactType: "Admissions", Telephone: p.ProviderTelephone}
	}
	for _, a := range p.Addresses {
		doc.Provider.Address = append(doc.Provider.Address, PostalAddress{
			Type:            "PostalAddress",
			StreetAddress:   a.StreetAddress,
			AddressLocality: a.AddressLocality,
			AddressRegion:   a.AddressRegion,
			PostalCode:      a.PostalCode,
			AddressCountry:  a.AddressCountry,
		})
	}

	price, err := parseAmount(p.TotalCost)
	if err != nil {
		return nil, fmt.Errorf("%w: total cost: %v", ErrInvalidDocument, err)
	}
	if price != nil {
		doc.Offers = []Offer{{
			Type:     "Offer",
			Category: "Total Cost",
			PriceSpecification: PriceSpecification{
				Type:          "PriceSpecification",
				Price:         *price,
				PriceCurrency: currencyUSD,
			},
		}}
	}

	if p.Prerequisites != nil && !p.Prerequisites.IsEmpty() {
		doc.ProgramPrerequisites = &Requirement{
			CredentialCategory:        p.Prerequisites.CredentialCategory,
			EligibleGroups:            p.Prerequisites.EligibleGroups,
			MaxIncomeEligibility:      p.Prerequisites.MaxIncomeEligibility,
			OtherProgramPrerequisites: p.Prerequisites.OtherProgramPrerequisites,
		}
	}

	switch p.Type {
	case Educational:
		if p.Educational == nil {
			return nil, fmt.Errorf("%w: educational details missing", ErrInvalidDocument)
		}
		doc.Type = TypeList{string(Educational)}
		doc.EducationalPayload = buildEducational(p.Educational)
	case WorkBased:
		if p.WorkBased == nil {
			return nil, fmt.Errorf("%w: work-based details missing", ErrInvalidDocument)
		}
		payload, err := buildWorkBased(p.WorkBased)
		if err != nil {
			return nil, err
		}
		doc.Type = TypeList{string(Educational), string(WorkBased)}
		doc.WorkBasedPayload = payload
	default:
		return nil, fmt.Errorf("%w: unknown program type %q", ErrInvalidDocument, p.Type)
	}

	return doc, nil
}

func buildEducational(d *EducationalDetails) *EducationalPayload {
	out := &EducationalPayload{
		ApplicationDeadline:    d.ApplicationDeadline,
		EducationalProgramMode: d.Mode,
	}
	if d.CIP != "" {
		out.Identifier = append(out.Identifier, PropertyValue{Type: "PropertyValue", PropertyID: "CIP2010", Value: d.CIP})
	}
	if d.ProgramID != "" {
		out.Identifier = append(out.Identifier, PropertyValue{Type: "PropertyValue", PropertyID: "ProgramID", Value: d.ProgramID})
	}
	return out
}

func buildWorkBased(d *WorkBasedDetails) (*WorkBasedPayload, error) {
	out := &WorkBasedPayload{}

	wage, err := parseAmount(d.TrainingHourlyWage)
	if err != nil {
		return nil, fmt.Errorf("%w: training salary: %v", ErrInvalidDocument, err)
	}
	if wage != nil {
		out.TrainingSalary = &MonetaryAmountDistribution{Type: "MonetaryAmountDistribution", Currency: currencyUSD, Duration: "PT1H", Median: *wage}
	}

	salary, err := parseAmount(d.PostGradSalary)
	if err != nil {
		return nil, fmt.Errorf("%w: salary upon completion: %v", ErrInvalidDocument, err)
	}
	if salary != nil {
		out.SalaryUponCompletion = &MonetaryAmountDistribution{Type: "MonetaryAmountDistribution", Currency: currencyUSD, Duration: "P1Y", Median: *salary}
	}
	return out, nil
}

// parseAmount reads "$1,250.00"-style money. Blank input yields nil.
func parseAmount(s string) (*float64, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil, nil
	}
	v = strings.NewReplacer("$", "", ",", "", " ", "").Replace(v)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if f < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	return &f, nil
}

func checkURL(s string) error {
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an absolute http(s) url: %q", s)
	}
	return nil
}
