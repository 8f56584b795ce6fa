package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/identity/models"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: []string{}},
		{name: "simple", input: "Rajesh Kumar", expected: []string{"rajesh", "kumar"}},
		{name: "punctuation stripped", input: "  Dr. A.K. Sharma!! ", expected: []string{"dr", "ak", "sharma"}},
		{name: "hyphen and apostrophe kept", input: "Mary-Jane O'Neil", expected: []string{"mary-jane", "o'neil"}},
		{name: "digits dropped", input: "Ravi 2nd", expected: []string{"ravi", "nd"}},
		{name: "tabs and newlines split", input: "Asha\tDevi\nRao", expected: []string{"asha", "devi", "rao"}},
		{name: "combining accent composed", input: "José", expected: []string{"josé"}},
		{name: "only symbols", input: "*** ###", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Name(tt.input)
			if len(tt.expected) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAddress(t *testing.T) {
	t.Run("fixed order with abbreviations expanded", func(t *testing.T) {
		got := Address(models.Address{
			House:    "12B",
			Street:   "Station Rd.",
			City:     "Pune",
			District: "Pune",
			State:    "Maharashtra",
			PIN:      "411 001",
		})
		assert.Equal(t, "12b, station road, pune, pune, maharashtra, 411001", got.Canonical)
		assert.Equal(t, "411001", got.PIN)
		assert.Equal(t, "station road", got.Street)
		assert.Len(t, got.Hash, 64)
	})

	t.Run("missing fields are omitted not placeholdered", func(t *testing.T) {
		got := Address(models.Address{City: "Nagpur", PIN: "440001"})
		assert.Equal(t, "nagpur, 440001", got.Canonical)
	})

	t.Run("empty address has no hash", func(t *testing.T) {
		got := Address(models.Address{})
		assert.True(t, got.IsEmpty())
		assert.Empty(t, got.Hash)
	})

	t.Run("hash is stable across formatting noise", func(t *testing.T) {
		a := Address(models.Address{Street: "MG  Road", City: "Indore", PIN: "452001"})
		b := Address(models.Address{Street: "mg road", City: " INDORE ", PIN: "452-001"})
		assert.Equal(t, a.Hash, b.Hash)
	})
}

func TestPIN(t *testing.T) {
	assert.Equal(t, "", PIN(""))
	assert.Equal(t, "", PIN("n/a"))
	assert.Equal(t, "560001", PIN("560001"))
	assert.Equal(t, "560001", PIN("5600019"))
	assert.Equal(t, "000123", PIN("123"))
}

func TestAddressConfidence(t *testing.T) {
	assert.Equal(t, 0.0, AddressConfidence(models.Address{Street: "x"}))
	assert.Equal(t, 0.5, AddressConfidence(models.Address{City: "Pune", PIN: "411001"}))
	assert.Equal(t, 1.0, AddressConfidence(models.Address{City: "a", District: "b", State: "c", PIN: "1"}))
}

func TestRecord(t *testing.T) {
	n := Record(models.IdentityRecord{ID: "v1", Name: "Robert  Smith"})
	require.Equal(t, []string{"robert", "smith"}, n.Tokens)
	assert.Equal(t, "robert smith", n.FullName)
	assert.Equal(t, "smith", n.Surname)
	assert.NotEmpty(t, n.Soundex)
	assert.NotEmpty(t, n.Metaphone)
	assert.True(t, n.Address.IsEmpty())
}
