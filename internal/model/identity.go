package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DomainRow prefixes every row identity hash. The version suffix leaves room
// for a future change of identifying fields without colliding with old keys.
const DomainRow = "jobtrail/row/v1"

// Hosted-store property names used for identity lookups.
const (
	PropertyIdentity       = "Identity"
	PropertyMessageID      = "Message ID"
	PropertyConversationID = "Conversation ID"
)

// Fallback is a secondary identifying property used to find external records
// created before the Identity property existed.
type Fallback struct {
	Property string
	Value    string
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IdentityKey derives the stable identity key of a row from its intrinsic
// fields. The message identifier alone identifies a row when present;
// otherwise the conversation, sender, subject and received timestamp do, so
// refreshing body, company or extra columns from the master cannot change
// the key. A row with none of those (typically entered by hand) is
// identified by its whole intrinsic content.
func IdentityKey(in Intrinsic) string {
	if id := normalizeIdentity(in.MessageID); id != "" {
		return hashWithDomain(DomainRow, MarshalCanonical(map[string]string{ColMessageID: id}))
	}

	obj := map[string]string{
		ColConversationID: normalizeIdentity(in.ConversationID),
		ColFrom:           strings.ToLower(normalizeIdentity(in.From)),
		ColSubject:        normalizeIdentity(in.Subject),
		ColReceivedUTC:    normalizeIdentity(in.ReceivedUTC),
	}
	if obj[ColConversationID] == "" && obj[ColFrom] == "" && obj[ColSubject] == "" && obj[ColReceivedUTC] == "" {
		obj[ColCompany] = normalizeIdentity(in.Company)
		obj[ColBody] = normalizeIdentity(in.Body)
	}
	return hashWithDomain(DomainRow, MarshalCanonical(obj))
}

// FallbackKeys returns the legacy lookup properties for a row, in priority
// order. Conversation ID is only offered when the row has no message id:
// several messages share one conversation and must not collapse into a
// single external record.
func FallbackKeys(in Intrinsic) []Fallback {
	if id := normalizeIdentity(in.MessageID); id != "" {
		return []Fallback{{Property: PropertyMessageID, Value: id}}
	}
	if id := normalizeIdentity(in.ConversationID); id != "" {
		return []Fallback{{Property: PropertyConversationID, Value: id}}
	}
	return nil
}

// normalizeIdentity trims and collapses internal whitespace so cosmetic edits
// in the spreadsheet do not change a key.
func normalizeIdentity(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
