package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/clusters/models"
	identity "rollguard/internal/identity/models"
	"rollguard/internal/scoring"
)

var (
	regStart = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	surnames = []string{
		"Patil", "Joshi", "Kulkarni", "Deshmukh", "Shinde", "Pawar", "Jadhav",
		"Gaikwad", "Chavan", "More", "Kale", "Bhosale", "Naik", "Salunkhe",
	}
	givenNames = []string{
		"Amit", "Sneha", "Rahul", "Pooja", "Vikas", "Anita", "Sachin",
		"Kavita", "Nitin", "Meena", "Ganesh", "Rupali", "Sagar", "Swati",
	}
)

// resident places a voter at the shared test address.
func resident(id, name, dob string, registered time.Time) identity.IdentityRecord {
	return residentAt(id, name, dob, registered, "12")
}

func residentAt(id, name, dob string, registered time.Time, house string) identity.IdentityRecord {
	return identity.IdentityRecord{
		ID:   id,
		Name: name,
		DOB:  dob,
		Address: identity.Address{
			House:    house,
			Street:   "Gandhi Nagar",
			City:     "Pune",
			District: "Pune",
			State:    "Maharashtra",
			PIN:      "411001",
		},
		RegisteredAt: registered,
		Active:       true,
	}
}

// diverseHousehold builds n voters with distinct surnames and birth dates
// and no registration time.
func diverseHousehold(prefix string, n int) []identity.IdentityRecord {
	out := make([]identity.IdentityRecord, 0, n)
	for i := range n {
		name := givenNames[i%len(givenNames)] + " " + surnames[i%len(surnames)]
		dob := fmt.Sprintf("19%02d-0%d-1%d", 50+i, 1+i%9, i%10)
		out = append(out, resident(fmt.Sprintf("%s%02d", prefix, i), name, dob, time.Time{}))
	}
	return out
}

func subjects(records []identity.IdentityRecord) []scoring.Subject {
	out := make([]scoring.Subject, 0, len(records))
	for _, r := range records {
		out = append(out, scoring.Prepare(r))
	}
	return out
}

func TestAssess_EverySignalFiresOnRegistrationFarm(t *testing.T) {
	records := make([]identity.IdentityRecord, 0, 25)
	for i := range 25 {
		surname := "Kumar"
		if i%2 == 1 {
			surname = "Singh"
		}
		name := givenNames[i%len(givenNames)] + " " + surname
		registered := regStart.Add(time.Duration(i) * 2 * time.Hour)
		records = append(records, resident(fmt.Sprintf("F%02d", i), name, "1990-01-01", registered))
	}

	a := assess(subjects(records), models.DefaultThresholds())

	assert.Equal(t, 25, a.VoterCount)
	assert.Equal(t, models.RiskHigh, a.RiskLevel)
	assert.Equal(t, 1.0, a.RiskScore, "score is capped")
	assert.InDelta(t, 2.0/25, a.SurnameDiversity, 1e-9)
	assert.InDelta(t, 0.0, a.DOBClustering, 1e-9)
	assert.InDelta(t, 2.0, a.VelocityDays, 1e-9)
	assert.Equal(t, []string{
		models.ReasonVoterCount,
		models.ReasonSurnameDiversity,
		models.ReasonDOBClustering,
		models.ReasonRegistrationBurst,
	}, a.Reasons)
	assert.Len(t, a.ExampleNames, models.MaxExampleNames)
	assert.Equal(t, "Amit Kumar", a.ExampleNames[0])
	assert.NotEmpty(t, a.AddressHash)
	assert.Contains(t, a.CanonicalAddress, "gandhi nagar")
}

func TestAssess_SmallDiverseHouseholdIsLow(t *testing.T) {
	a := assess(subjects(diverseHousehold("H", 6)), models.DefaultThresholds())

	assert.Equal(t, models.RiskLow, a.RiskLevel)
	assert.InDelta(t, 0.1, a.RiskScore, 1e-9)
	assert.Equal(t, []string{models.ReasonVoterCount}, a.Reasons)
	assert.Equal(t, -1.0, a.VelocityDays, "no registration times recorded")
	assert.InDelta(t, 1.0, a.SurnameDiversity, 1e-9)
	assert.InDelta(t, 1-1.0/6, a.DOBClustering, 1e-9)
}

func TestAssess_Signals(t *testing.T) {
	t.Run("single surname lifts low to medium", func(t *testing.T) {
		records := diverseHousehold("S", 6)
		for i := range records {
			records[i].Name = givenNames[i] + " Patil"
		}
		a := assess(subjects(records), models.DefaultThresholds())
		assert.Equal(t, models.RiskMedium, a.RiskLevel)
		assert.InDelta(t, 0.3, a.RiskScore, 1e-9)
		assert.Contains(t, a.Reasons, models.ReasonSurnameDiversity)
	})

	t.Run("shared birth date escalates one level", func(t *testing.T) {
		records := diverseHousehold("D", 6)
		for i := range 4 {
			records[i].DOB = "1980-05-05"
		}
		a := assess(subjects(records), models.DefaultThresholds())
		assert.InDelta(t, 1-4.0/6, a.DOBClustering, 1e-9)
		assert.Equal(t, models.RiskMedium, a.RiskLevel)
		assert.Contains(t, a.Reasons, models.ReasonDOBClustering)
	})

	t.Run("missing birth dates are not a cluster", func(t *testing.T) {
		records := diverseHousehold("N", 6)
		for i := range records {
			records[i].DOB = ""
		}
		a := assess(subjects(records), models.DefaultThresholds())
		assert.InDelta(t, 1.0, a.DOBClustering, 1e-9)
		assert.NotContains(t, a.Reasons, models.ReasonDOBClustering)
	})

	t.Run("registration burst over ten voters escalates", func(t *testing.T) {
		records := diverseHousehold("B", 12)
		for i := range records {
			records[i].RegisteredAt = regStart.Add(time.Duration(i) * 4 * time.Hour)
		}
		a := assess(subjects(records), models.DefaultThresholds())
		assert.Equal(t, models.RiskHigh, a.RiskLevel, "medium by count, escalated once")
		assert.InDelta(t, 0.5, a.RiskScore, 1e-9)
		assert.Contains(t, a.Reasons, models.ReasonRegistrationBurst)
	})

	t.Run("slow registrations are not a burst", func(t *testing.T) {
		records := diverseHousehold("L", 12)
		for i := range records {
			records[i].RegisteredAt = regStart.AddDate(0, i, 0)
		}
		a := assess(subjects(records), models.DefaultThresholds())
		assert.Equal(t, models.RiskMedium, a.RiskLevel)
		assert.Greater(t, a.VelocityDays, 7.0)
		assert.NotContains(t, a.Reasons, models.ReasonRegistrationBurst)
	})

	t.Run("burst needs more than ten voters", func(t *testing.T) {
		records := diverseHousehold("T", 8)
		for i := range records {
			records[i].RegisteredAt = regStart.Add(time.Duration(i) * time.Hour)
		}
		a := assess(subjects(records), models.DefaultThresholds())
		assert.Equal(t, models.RiskLow, a.RiskLevel)
		assert.NotContains(t, a.Reasons, models.ReasonRegistrationBurst)
	})
}

func TestAssess_ExampleNamesFollowRegistrationOrder(t *testing.T) {
	records := []identity.IdentityRecord{
		resident("E1", "Late Comer", "1970-01-01", regStart.AddDate(0, 0, 5)),
		resident("E2", "First Person", "1971-01-01", regStart),
		resident("E3", "first  person", "1972-01-01", regStart.AddDate(0, 0, 1)),
		resident("E4", "", "1973-01-01", regStart.AddDate(0, 0, 2)),
		resident("E5", "Second Person", "1974-01-01", regStart.AddDate(0, 0, 3)),
	}
	a := assess(subjects(records), models.Thresholds{Low: 2, Medium: 3, High: 4})

	assert.Equal(t, []string{"First Person", "Second Person", "Late Comer"}, a.ExampleNames)
}

func TestGroupByAddress(t *testing.T) {
	records := append(diverseHousehold("G", 6), diverseHousehold("K", 3)...)
	for i := 6; i < len(records); i++ {
		records[i].Address.House = "99"
	}
	records = append(records,
		identity.IdentityRecord{Name: "No Id", Address: records[0].Address},
		resident("G00", "Repeated Id", "1960-01-01", time.Time{}),
		identity.IdentityRecord{ID: "X1", Name: "Nowhere"},
	)

	groups := groupByAddress(records, 3)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 6, "largest group first")
	assert.Len(t, groups[1], 3)
	assert.NotEqual(t, groups[0][0].Norm.Address.Hash, groups[1][0].Norm.Address.Hash)

	assert.Len(t, groupByAddress(records, 7), 0)
}
