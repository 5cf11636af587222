package models

// BankAccount is account metadata reported by the bank link provider for a connection.
type BankAccount struct {
	ExternalAccountID string `json:"external_account_id"`
	Name              string `json:"name"`
	OfficialName      string `json:"official_name"`
	Mask              string `json:"mask"`
	Type              string `json:"type"`
	Subtype           string `json:"subtype"`
}
