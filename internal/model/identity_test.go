package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityKeyDeterminism(t *testing.T) {
	in := Intrinsic{
		From:        "recruiter@acme.example",
		Subject:     "Your application to Acme",
		ReceivedUTC: "2025-03-01T10:00:00Z",
	}

	k1 := IdentityKey(in)
	k2 := IdentityKey(in)

	assert.Equal(t, k1, k2, "IdentityKey must be deterministic")
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestIdentityKeyPrefersMessageID(t *testing.T) {
	a := Intrinsic{MessageID: "<m-1@mail>", Subject: "first subject"}
	b := Intrinsic{MessageID: "<m-1@mail>", Subject: "edited subject", From: "x@y"}
	c := Intrinsic{MessageID: "<m-2@mail>", Subject: "first subject"}

	assert.Equal(t, IdentityKey(a), IdentityKey(b), "message id alone identifies the row")
	assert.NotEqual(t, IdentityKey(a), IdentityKey(c))
}

func TestIdentityKeyIgnoresNonIdentifyingFields(t *testing.T) {
	base := Intrinsic{From: "a@b", Subject: "Interview", ReceivedUTC: "2025-01-01T00:00:00Z"}

	edited := base
	edited.Body = "a much longer body"
	edited.Company = "Acme"

	assert.Equal(t, IdentityKey(base), IdentityKey(edited))
}

func TestIdentityKeyNormalizesWhitespaceAndSenderCase(t *testing.T) {
	a := Intrinsic{From: "Recruiter@Acme.example", Subject: "Offer  letter", ReceivedUTC: "2025-01-01"}
	b := Intrinsic{From: " recruiter@acme.example ", Subject: "Offer letter ", ReceivedUTC: "2025-01-01"}

	assert.Equal(t, IdentityKey(a), IdentityKey(b))
}

func TestIdentityKeyChangesWithIdentifyingFields(t *testing.T) {
	base := Intrinsic{From: "a@b", Subject: "Interview", ReceivedUTC: "2025-01-01T00:00:00Z"}

	other := base
	other.ReceivedUTC = "2025-01-02T00:00:00Z"
	thread := base
	thread.ConversationID = "conv-7"

	assert.NotEqual(t, IdentityKey(base), IdentityKey(other))
	assert.NotEqual(t, IdentityKey(base), IdentityKey(thread))
}

func TestIdentityKeyBlankSubsetUsesWholeContent(t *testing.T) {
	// Hand-entered rows without message id, conversation, sender, subject or
	// timestamp must not all collapse into one key.
	acme := Intrinsic{Company: "Acme", Body: "Applied to SRE role"}
	globex := Intrinsic{Company: "Globex", Body: "Phone screen notes"}

	assert.NotEqual(t, IdentityKey(acme), IdentityKey(globex))
	assert.Equal(t, IdentityKey(acme), IdentityKey(Intrinsic{Company: " Acme ", Body: "Applied to  SRE role"}))

	// Company and body stay out of the key once any identifying field is set.
	withSubject := Intrinsic{Subject: "Notes", Company: "Acme"}
	assert.Equal(t, IdentityKey(withSubject), IdentityKey(Intrinsic{Subject: "Notes", Company: "Globex"}))
}

func TestIdentityKeyUnicodeNormalization(t *testing.T) {
	composed := Intrinsic{Subject: "Caf\u00e9 role", From: "a@b"}
	decomposed := Intrinsic{Subject: "Cafe\u0301 role", From: "a@b"}

	assert.Equal(t, IdentityKey(composed), IdentityKey(decomposed), "NFC normalisation applies before hashing")
}

func TestFallbackKeys(t *testing.T) {
	tests := []struct {
		name string
		in   Intrinsic
		want []Fallback
	}{
		{
			name: "message id",
			in:   Intrinsic{MessageID: "m-1", ConversationID: "c-1"},
			want: []Fallback{{Property: PropertyMessageID, Value: "m-1"}},
		},
		{
			name: "conversation only without message id",
			in:   Intrinsic{ConversationID: " c-1 "},
			want: []Fallback{{Property: PropertyConversationID, Value: "c-1"}},
		},
		{
			name: "none",
			in:   Intrinsic{Subject: "hello"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FallbackKeys(tt.in))
		})
	}
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]string
		want string
	}{
		{"empty", map[string]string{}, `{}`},
		{"sorted keys", map[string]string{"b": "2", "a": "1"}, `{"a":"1","b":"2"}`},
		{"no html escaping", map[string]string{"k": "<a&b>"}, `{"k":"<a&b>"}`},
		{"line separator literal", map[string]string{"k": "x\u2028y"}, "{\"k\":\"x\u2028y\"}"},
		{"control characters", map[string]string{"k": "a\nb\x01"}, `{"k":"a\nb\u0001"}`},
		{"quote and backslash", map[string]string{"k": `"\`}, `{"k":"\"\\"}`},
		{"nfc", map[string]string{"k": "e\u0301"}, "{\"k\":\"\u00e9\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, string(MarshalCanonical(tt.in)))
		})
	}
}

func TestCompareUTF16Ordering(t *testing.T) {
	// U+1F600 sorts after U+FF61 in UTF-8 byte order (0xF0 > 0xEF) but
	// before it in UTF-16 code units (0xD83D < 0xFF61).
	emoji := "\U0001F600"
	halfwidth := "\uFF61"

	assert.Less(t, compareUTF16(emoji, halfwidth), 0)
	assert.Equal(t, 0, compareUTF16("abc", "abc"))
	assert.Less(t, compareUTF16("ab", "abc"), 0)
}
