package models

import "time"

type BankConnection struct {
	ID              int64      `json:"id"`
	OrgID           int64      `json:"org_id"`
	ExternalItemID  string     `json:"external_item_id"`
	AccessTokenEnc  string     `json:"-"`
	InstitutionName string     `json:"institution_name"`
	AccountMask     string     `json:"account_mask"`
	Cursor          *string    `json:"-"`
	LastSyncedAt    *time.Time `json:"last_synced_at"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (c *BankConnection) CursorValue() string {
	if c == nil || c.Cursor == nil {
		return ""
	}
	return *c.Cursor
}
