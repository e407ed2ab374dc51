package pathways

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/gopathways/pkg/changefilter"
	"github.com/3leaps/gopathways/pkg/fields"
	"github.com/3leaps/gopathways/pkg/grid"
	"github.com/3leaps/gopathways/test/fixture"
)

var stamp = time.Date(2020, 3, 18, 7, 25, 37, 0, time.UTC)

// rowsFrom runs fixture rows through normalization and date handling.
func rowsFrom(t *testing.T, rows ...[]string) []changefilter.Row {
	t.Helper()
	tbl := grid.Normalize(fixture.Grid(rows...), grid.DefaultHeaderMap())
	tbl = grid.AddColumn(tbl, grid.FieldSourceSheetID, "sheet-1")
	tbl = fields.NewTransformer("").Apply(tbl)

	out := make([]changefilter.Row, len(tbl))
	for i, rec := range tbl {
		out[i] = changefilter.Row{Record: rec, UpdatedAt: stamp}
	}
	return out
}

func decode(t *testing.T, doc *Document) map[string]any {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestMakePrerequisites(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		p := MakePrerequisites(grid.Record{
			grid.FieldIsDiplomaRequired:    "Yes",
			grid.FieldEligibleGroups:       "Veteran",
			grid.FieldMaxIncomeEligibility: "40000",
			grid.FieldPrerequisites:        "Reliable transportation",
		})
		require.NotNil(t, p)
		assert.Equal(t, Prerequisites{
			CredentialCategory:        "HighSchool",
			EligibleGroups:            "Veteran",
			MaxIncomeEligibility:      "40000",
			OtherProgramPrerequisites: "Reliable transportation",
		}, *p)
	})

	t.Run("diploma only omits the rest", func(t *testing.T) {
		p := MakePrerequisites(grid.Record{
			grid.FieldIsDiplomaRequired:    "Yes",
			grid.FieldEligibleGroups:       "",
			grid.FieldMaxIncomeEligibility: "",
			grid.FieldPrerequisites:        "",
		})
		require.NotNil(t, p)

		data, err := json.Marshal(p)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		assert.Equal(t, map[string]any{"credential_category": "HighSchool"}, m)
	})

	t.Run("diploma not required", func(t *testing.T) {
		p := MakePrerequisites(grid.Record{grid.FieldIsDiplomaRequired: "No", grid.FieldEligibleGroups: "Youth"})
		require.NotNil(t, p)
		assert.Empty(t, p.CredentialCategory)
		assert.Equal(t, "Youth", p.EligibleGroups)
	})

	t.Run("nothing given", func(t *testing.T) {
		assert.Nil(t, MakePrerequisites(grid.Record{grid.FieldIsDiplomaRequired: "No"}))
	})
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, WorkBased, TypeOf(grid.Record{grid.FieldIsPaid: "Yes"}))
	assert.Equal(t, Educational, TypeOf(grid.Record{grid.FieldIsPaid: "No"}))
	assert.Equal(t, Educational, TypeOf(grid.Record{grid.FieldIsPaid: "yes"}))
	assert.Equal(t, Educational, TypeOf(grid.Record{}))
}

func TestMapWorkBasedFixture(t *testing.T) {
	res := NewMapper(MapperConfig{}, nil).Map(rowsFrom(t, fixture.Row(nil)))
	require.Empty(t, res.Skipped)
	require.Len(t, res.Outputs, 1)

	out := res.Outputs[0]
	assert.Equal(t, fixture.DefaultRowIdentifier, out.ID)
	assert.Equal(t, "sheet-1", out.SourceID)
	assert.Equal(t, stamp, out.UpdatedAt)

	doc := decode(t, out.Document)
	assert.Equal(t, []any{"EducationalOccupationalProgram", "WorkBasedProgram"}, doc["@type"])
	assert.Equal(t, "Youth Employment", doc["name"])
	assert.Equal(t, "P14W", doc["timeToComplete"])
	assert.Equal(t, []any{"2021-07-15"}, doc["startDate"])
	assert.Contains(t, doc, "trainingSalary")
	assert.NotContains(t, doc, "salaryUponCompletion")
	assert.NotContains(t, doc, "applicationDeadline")
	assert.NotContains(t, doc, "identifier")

	provider := doc["provider"].(map[string]any)
	assert.Equal(t, "Goodwill of Springfield", provider["name"])
	addrs := provider["address"].([]any)
	require.Len(t, addrs, 1)
	assert.Equal(t, "1 Grickle Grass Lane", addrs[0].(map[string]any)["streetAddress"])
	assert.Equal(t, "US", addrs[0].(map[string]any)["addressCountry"])

	prereqs := doc["programPrerequisites"].(map[string]any)
	assert.Equal(t, map[string]any{"eligibleGroups": "Youth"}, prereqs)
}

func TestMapEducational(t *testing.T) {
	res := NewMapper(MapperConfig{}, nil).Map(rowsFrom(t, fixture.Row(map[string]string{
		fixture.ColIsPaid:          "No",
		fixture.ColDeadline:        "rolling",
		fixture.ColDiplomaRequired: "Yes",
		fixture.ColEligibleGroups:  "",
	})))
	require.Len(t, res.Outputs, 1)

	doc := decode(t, res.Outputs[0].Document)
	assert.Equal(t, "EducationalOccupationalProgram", doc["@type"])
	assert.Equal(t, fields.DefaultSentinel, doc["applicationDeadline"])
	assert.Equal(t, "In person", doc["educationalProgramMode"])
	assert.Len(t, doc["identifier"], 2)
	assert.NotContains(t, doc, "trainingSalary")
	assert.Equal(t, map[string]any{"credentialCategory": "HighSchool"}, doc["programPrerequisites"])
}

func TestMapFiltersOptIn(t *testing.T) {
	rows := rowsFrom(t,
		fixture.Row(map[string]string{fixture.ColPathways: "No", fixture.ColRowIdentifier: "a"}),
		fixture.Row(map[string]string{fixture.ColPathways: "yes", fixture.ColRowIdentifier: "b"}),
		fixture.Row(map[string]string{fixture.ColPathways: "", fixture.ColRowIdentifier: "c"}),
		fixture.Row(map[string]string{fixture.ColPathways: "Yes", fixture.ColRowIdentifier: "d"}),
	)
	res := NewMapper(MapperConfig{}, nil).Map(rows)

	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "d", res.Outputs[0].ID)
	assert.Equal(t, 3, res.NotEnabled)
	assert.Empty(t, res.Skipped)
}

func TestMapSkipsBadRowsAndKeepsOrder(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rows := rowsFrom(t,
		fixture.Row(map[string]string{fixture.ColRowIdentifier: "first"}),
		fixture.Row(map[string]string{fixture.ColRowIdentifier: "bad-duration", fixture.ColDuration: "two weeks"}),
		fixture.Row(map[string]string{fixture.ColRowIdentifier: "bad-cost", fixture.ColIsPaid: "No", fixture.ColTotalCost: "free-ish"}),
		fixture.Row(map[string]string{fixture.ColRowIdentifier: "bad-url", fixture.ColProgramURL: "goodwill.test/jobs"}),
		fixture.Row(map[string]string{fixture.ColRowIdentifier: "last", fixture.ColDuration: "6 months"}),
	)

	res := NewMapper(MapperConfig{}, zap.New(core)).Map(rows)

	var got []string
	for _, o := range res.Outputs {
		got = append(got, o.ID)
	}
	assert.Equal(t, []string{"first", "last"}, got)

	require.Len(t, res.Skipped, 3)
	assert.Equal(t, Skip{ID: "bad-duration", Reason: SkipInvalidDuration, Err: res.Skipped[0].Err}, res.Skipped[0])
	assert.True(t, errors.Is(res.Skipped[0].Err, fields.ErrInvalidDuration))
	assert.Equal(t, SkipInvalidDocument, res.Skipped[1].Reason)
	assert.True(t, errors.Is(res.Skipped[1].Err, ErrInvalidDocument))
	assert.Equal(t, "bad-url", res.Skipped[2].ID)

	assert.Equal(t, 1, logs.FilterMessage("Skipping row: invalid program duration").Len())
	entries := logs.FilterMessage("Skipping row: document construction failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "bad-cost", entries[0].ContextMap()["row_id"])
}

func TestBuildDocumentRequiresNameAndProvider(t *testing.T) {
	base := Program{ID: "x", Type: Educational, Name: "n", ProviderName: "p", Educational: &EducationalDetails{}}

	_, err := BuildDocument(&base)
	require.NoError(t, err)

	noName := base
	noName.Name = ""
	_, err = BuildDocument(&noName)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	noProvider := base
	noProvider.ProviderName = ""
	_, err = BuildDocument(&noProvider)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	mismatched := base
	mismatched.Type = WorkBased
	_, err = BuildDocument(&mismatched)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestParseAmount(t *testing.T) {
	v, err := parseAmount("$1,250.50")
	require.NoError(t, err)
	assert.InDelta(t, 1250.5, *v, 0.0001)

	v, err = parseAmount("")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = parseAmount("-5")
	assert.Error(t, err)
}

func TestValidateDocumentRejectsBadDuration(t *testing.T) {
	doc := &Document{
		Context:            schemaContext,
		Type:               TypeList{string(Educational)},
		Name:               "n",
		Provider:           Provider{Type: "EducationalOrganization", Name: "p"},
		TimeToComplete:     "160 hours",
		EducationalPayload: &EducationalPayload{},
	}
	err := ValidateDocument(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestTypeListRoundTrip(t *testing.T) {
	var tl TypeList
	require.NoError(t, json.Unmarshal([]byte(`"WorkBasedProgram"`), &tl))
	assert.Equal(t, TypeList{"WorkBasedProgram"}, tl)
	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &tl))
	assert.Equal(t, TypeList{"a", "b"}, tl)
}
