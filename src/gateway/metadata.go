package gateway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"havenledger-server/src/models"
)

// MetadataKey is one of the fields allowed on gateway objects. Nothing outside
// this set is ever sent to the payment provider.
type MetadataKey string

const (
	MetaOrgID      MetadataKey = "org_id"
	MetaPayerID    MetadataKey = "payer_id"
	MetaInvoiceIDs MetadataKey = "invoice_ids"
	MetaAttempt    MetadataKey = "attempt"
	MetaSource     MetadataKey = "source"
)

// SourceValue marks gateway objects created by this service.
const SourceValue = "havenledger"

var allowedMetadataKeys = map[MetadataKey]bool{
	MetaOrgID:      true,
	MetaPayerID:    true,
	MetaInvoiceIDs: true,
	MetaAttempt:    true,
	MetaSource:     true,
}

// clinicalPattern matches values that look like health information: clinical
// field names, treatment vocabulary, and ICD-10 style codes such as F10.20.
var clinicalPattern = regexp.MustCompile(
	`(?i)((^|[^a-z0-9])(clinical|diagnos[a-z]*|dx|icd[-_ ]?(10)?|dsm[-_ ]?5?|treatment|therapy|therapist|medication|prescri[a-z]*|dosage|detox|relapse|sobriety|substance|phi|hipaa|mental[-_ ]health)([^a-z0-9]|$)|\b[A-TV-Z][0-9]{2}\.[0-9A-Z]{1,4}\b)`,
)

// Metadata is the closed set of key/value pairs attached to gateway objects.
// The zero value is empty and ready to use.
type Metadata struct {
	values map[MetadataKey]string
}

// Set adds a field. Unknown keys and clinical-looking values are rejected with
// ErrComplianceViolation; offending data is never silently dropped.
func (m *Metadata) Set(key MetadataKey, value string) error {
	if !allowedMetadataKeys[key] {
		return fmt.Errorf("%w: key %q is not allowed", models.ErrComplianceViolation, key)
	}
	if clinicalPattern.MatchString(value) {
		return fmt.Errorf("%w: value for %q", models.ErrComplianceViolation, key)
	}
	if m.values == nil {
		m.values = make(map[MetadataKey]string)
	}
	m.values[key] = value
	return nil
}

func (m Metadata) Get(key MetadataKey) string {
	return m.values[key]
}

// Validate re-checks every field. Used before each provider call.
func (m Metadata) Validate() error {
	for k, v := range m.values {
		var probe Metadata
		if err := probe.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Map returns a copy suitable for the provider SDK.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[string(k)] = v
	}
	return out
}

func (m Metadata) Len() int {
	return len(m.values)
}

// PaymentMetadata builds the fields attached to every charge and checkout session.
func PaymentMetadata(orgID, payerID int64, invoiceIDs []int64, attempt string) (Metadata, error) {
	ids := make([]string, len(invoiceIDs))
	for i, id := range invoiceIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}

	var md Metadata
	fields := []struct {
		key   MetadataKey
		value string
	}{
		{MetaOrgID, strconv.FormatInt(orgID, 10)},
		{MetaPayerID, strconv.FormatInt(payerID, 10)},
		{MetaInvoiceIDs, strings.Join(ids, ",")},
		{MetaSource, SourceValue},
	}
	if attempt != "" {
		fields = append(fields, struct {
			key   MetadataKey
			value string
		}{MetaAttempt, attempt})
	}
	for _, f := range fields {
		if err := md.Set(f.key, f.value); err != nil {
			return Metadata{}, err
		}
	}
	return md, nil
}
