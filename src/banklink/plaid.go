package banklink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"havenledger-server/src/models"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/shopspring/decimal"
)

const providerPlaid = "plaid"

// PlaidAPI implements API on the Plaid client.
type PlaidAPI struct {
	client *plaid.APIClient
}

func NewPlaidAPI(client *plaid.APIClient) *PlaidAPI {
	return &PlaidAPI{client: client}
}

func (p *PlaidAPI) CreateLinkToken(ctx context.Context, req LinkTokenRequest) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{
		ClientUserId: req.ClientUserID,
	}
	request := plaid.NewLinkTokenCreateRequest(
		req.ClientName,
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
	)
	request.SetUser(user)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	if req.WebhookURL != "" {
		request.SetWebhook(req.WebhookURL)
	}
	resp, httpResp, err := p.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", mapPlaidError(err, httpResp)
	}
	return resp.GetLinkToken(), nil
}

func (p *PlaidAPI) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, httpResp, err := p.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", mapPlaidError(err, httpResp)
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}

func (p *PlaidAPI) GetInstitutionName(ctx context.Context, accessToken string) (string, error) {
	itemReq := plaid.NewItemGetRequest(accessToken)
	itemResp, httpResp, err := p.client.PlaidApi.ItemGet(ctx).ItemGetRequest(*itemReq).Execute()
	if err != nil {
		return "", mapPlaidError(err, httpResp)
	}
	item := itemResp.GetItem()
	institutionID := item.GetInstitutionId()
	if institutionID == "" {
		return "", nil
	}

	instReq := plaid.NewInstitutionsGetByIdRequest(institutionID, []plaid.CountryCode{plaid.COUNTRYCODE_US})
	instResp, httpResp, err := p.client.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*instReq).Execute()
	if err != nil {
		return "", mapPlaidError(err, httpResp)
	}
	institution := instResp.GetInstitution()
	return institution.GetName(), nil
}

func (p *PlaidAPI) GetAccounts(ctx context.Context, accessToken string) ([]models.BankAccount, error) {
	request := plaid.NewAccountsGetRequest(accessToken)
	resp, httpResp, err := p.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
	if err != nil {
		return nil, mapPlaidError(err, httpResp)
	}
	accounts := make([]models.BankAccount, 0, len(resp.GetAccounts()))
	for _, acc := range resp.GetAccounts() {
		accounts = append(accounts, models.BankAccount{
			ExternalAccountID: acc.GetAccountId(),
			Name:              acc.GetName(),
			OfficialName:      acc.GetOfficialName(),
			Mask:              acc.GetMask(),
			Type:              string(acc.GetType()),
			Subtype:           string(acc.GetSubtype()),
		})
	}
	return accounts, nil
}

func (p *PlaidAPI) SyncTransactions(ctx context.Context, accessToken, cursor string, count int32) (*SyncPage, error) {
	request := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		request.SetCursor(cursor)
	}
	if count > 0 {
		request.SetCount(count)
	}
	resp, httpResp, err := p.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
	if err != nil {
		return nil, mapPlaidError(err, httpResp)
	}

	page := &SyncPage{
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
	}
	for _, txn := range resp.GetAdded() {
		page.Added = append(page.Added, toRawTransaction(txn))
	}
	for _, txn := range resp.GetModified() {
		page.Modified = append(page.Modified, toRawTransaction(txn))
	}
	for _, removed := range resp.GetRemoved() {
		page.Removed = append(page.Removed, removed.GetTransactionId())
	}
	return page, nil
}

func (p *PlaidAPI) RemoveItem(ctx context.Context, accessToken string) error {
	request := plaid.NewItemRemoveRequest(accessToken)
	_, httpResp, err := p.client.PlaidApi.ItemRemove(ctx).ItemRemoveRequest(*request).Execute()
	if err != nil {
		mapped := mapPlaidError(err, httpResp)
		var ge *models.GatewayError
		if errors.As(mapped, &ge) && ge.Code == "ITEM_NOT_FOUND" {
			return nil
		}
		return mapped
	}
	return nil
}

// WebhookVerificationKey fetches the key used to sign webhook JWTs.
func (p *PlaidAPI) WebhookVerificationKey(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
	req := plaid.NewWebhookVerificationKeyGetRequest(kid)
	resp, httpResp, err := p.client.PlaidApi.WebhookVerificationKeyGet(ctx).WebhookVerificationKeyGetRequest(*req).Execute()
	if err != nil {
		return nil, mapPlaidError(err, httpResp)
	}
	key := resp.GetKey()
	return &key, nil
}

func toRawTransaction(txn plaid.Transaction) RawTransaction {
	merchant := txn.GetMerchantName()
	if merchant == "" {
		merchant = txn.GetName()
	}
	var tags []string
	pfc := txn.GetPersonalFinanceCategory()
	if pfc.GetPrimary() != "" {
		tags = append(tags, pfc.GetPrimary())
	}
	if pfc.GetDetailed() != "" {
		tags = append(tags, pfc.GetDetailed())
	}
	date, _ := time.Parse(time.DateOnly, txn.GetDate())
	return RawTransaction{
		ExternalID:       txn.GetTransactionId(),
		AmountMinorUnits: ToMinorUnits(txn.GetAmount()),
		MerchantName:     merchant,
		CategoryTags:     tags,
		Date:             date,
		Pending:          txn.GetPending(),
		Currency:         txn.GetIsoCurrencyCode(),
	}
}

// ToMinorUnits converts a provider decimal amount to cents, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func mapPlaidError(err error, httpResp *http.Response) error {
	status := 0
	if httpResp != nil {
		status = httpResp.StatusCode
	}
	ge := &models.GatewayError{Provider: providerPlaid, StatusCode: status, Message: err.Error(), Err: err}
	if plaidErr, convErr := plaid.ToPlaidError(err); convErr == nil {
		ge.Code = plaidErr.ErrorCode
		ge.Message = plaidErr.ErrorMessage
		ge.Unavailable = retryablePlaid(status, string(plaidErr.ErrorType), plaidErr.ErrorCode)
	} else {
		ge.Unavailable = status == 0 || status >= 500 || status == http.StatusTooManyRequests
	}

	switch ge.Code {
	case "INVALID_PUBLIC_TOKEN":
		return fmt.Errorf("%w: %w", models.ErrTokenAlreadyUsed, ge)
	case "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION":
		return fmt.Errorf("%w: %w", models.ErrSyncMutation, ge)
	}
	return ge
}

func retryablePlaid(status int, errorType, code string) bool {
	switch errorType {
	case "API_ERROR", "INSTITUTION_ERROR", "RATE_LIMIT_EXCEEDED":
		return true
	}
	if code == "PRODUCT_NOT_READY" {
		return true
	}
	return status == 0 || status >= 500 || status == http.StatusTooManyRequests
}
