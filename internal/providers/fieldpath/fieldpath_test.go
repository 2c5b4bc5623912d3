package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_Get(t *testing.T) {
	body := []byte(`{
		"result": {
			"code": 0,
			"txn_id": "abc-123",
			"rate": 89.55,
			"final": true,
			"note": null,
			"items": [
				{"id": "first"},
				{"id": "second"}
			]
		}
	}`)

	doc, err := ParseJSON(body)
	require.NoError(t, err)

	testCases := []struct {
		name     string
		path     string
		expected string
		found    bool
	}{
		{"String", "result.txn_id", "abc-123", true},
		{"IntegerNumber", "result.code", "0", true},
		{"FractionalNumber", "result.rate", "89.55", true},
		{"Bool", "result.final", "true", true},
		{"Null", "result.note", "", true},
		{"ArrayIndex", "result.items[0].id", "first", true},
		{"ArrayIndexSecond", "result.items[1].id", "second", true},
		{"IndexOutOfRange", "result.items[5].id", "", false},
		{"MissingKey", "result.nope", "", false},
		{"MissingRoot", "other.txn_id", "", false},
		{"ScalarMidPath", "result.txn_id.deeper", "", false},
		{"ObjectIsNotScalar", "result", "", false},
		{"BadIndex", "result.items[x].id", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := doc.Get(tc.path)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseJSON_Invalid(t *testing.T) {
	_, err := ParseJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestParseXML_Get(t *testing.T) {
	body := []byte(`
		<response type="payment">
			<status>OK</status>
			<payment id="p-77">
				<amount>105.00</amount>
			</payment>
			<item>one</item>
			<item>two</item>
		</response>`)

	doc, err := ParseXML(body)
	require.NoError(t, err)

	testCases := []struct {
		name     string
		path     string
		expected string
		found    bool
	}{
		{"WithRootSegment", "response.status", "OK", true},
		{"WithoutRootSegment", "status", "OK", true},
		{"Nested", "response.payment.amount", "105.00", true},
		{"Attribute", "response.payment.@id", "p-77", true},
		{"RootAttribute", "response.@type", "payment", true},
		{"RepeatedFirst", "response.item", "one", true},
		{"RepeatedIndexed", "response.item[1]", "two", true},
		{"MissingElement", "response.nope", "", false},
		{"MissingAttribute", "response.@nope", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := doc.Get(tc.path)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseXML_Invalid(t *testing.T) {
	_, err := ParseXML([]byte("<unclosed>"))
	assert.Error(t, err)
}

func TestParse_FormatDispatch(t *testing.T) {
	jsonDoc, err := Parse("json", []byte(`{"a": "1"}`))
	require.NoError(t, err)
	v, ok := jsonDoc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	t.Run("EmptyDefaultsToJSON", func(t *testing.T) {
		doc, err := Parse("", []byte(`{"a": "1"}`))
		require.NoError(t, err)
		_, ok := doc.Get("a")
		assert.True(t, ok)
	})

	t.Run("XML", func(t *testing.T) {
		doc, err := Parse("xml", []byte(`<r><a>1</a></r>`))
		require.NoError(t, err)
		v, ok := doc.Get("r.a")
		assert.True(t, ok)
		assert.Equal(t, "1", v)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Parse("yaml", []byte("a: 1"))
		assert.Error(t, err)
	})
}

func TestParseExtractions(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		got := ParseExtractions("result.txn_id|ProviderTransferId, result.code|ProviderCode")
		require.Len(t, got, 2)
		assert.Equal(t, Extraction{Path: "result.txn_id", Key: "ProviderTransferId"}, got[0])
		assert.Equal(t, Extraction{Path: "result.code", Key: "ProviderCode"}, got[1])
	})

	t.Run("KeyDefaultsToLastSegment", func(t *testing.T) {
		got := ParseExtractions("result.receipt")
		require.Len(t, got, 1)
		assert.Equal(t, Extraction{Path: "result.receipt", Key: "receipt"}, got[0])
	})

	t.Run("EmptySpec", func(t *testing.T) {
		assert.Nil(t, ParseExtractions(""))
		assert.Nil(t, ParseExtractions("  "))
	})

	t.Run("SkipsEmptyEntries", func(t *testing.T) {
		got := ParseExtractions("a|x,,b")
		require.Len(t, got, 2)
	})
}

func TestContainsMarker(t *testing.T) {
	body := []byte(`<soap:Fault><faultstring>Server Unavailable</faultstring></soap:Fault>`)
	assert.True(t, ContainsMarker(body, "soap:fault"))
	assert.True(t, ContainsMarker(body, "SERVER UNAVAILABLE"))
	assert.False(t, ContainsMarker(body, "timeout"))
}
